package scrapeerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesOwnKind(t *testing.T) {
	cause := errors.New("net::ERR_CONNECTION_RESET")
	err := Navigation("Failed to navigate to https://example.com", cause)

	assert.ErrorIs(t, err, ErrNavigation)
	assert.NotErrorIs(t, err, ErrLogin)
	assert.ErrorIs(t, err, cause, "cause should stay reachable")
	assert.Equal(t, "Failed to navigate to https://example.com: net::ERR_CONNECTION_RESET", err.Error())
}

func TestErrorWithoutCause(t *testing.T) {
	err := Login("login failed: still on login page", nil)

	assert.Equal(t, "login failed: still on login page", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

func TestKindOfWrapped(t *testing.T) {
	inner := ElementNotFound("Element not found: #page-info", nil)
	outer := fmt.Errorf("step 3: %w", Scraping("Failed to scrape programs", inner))

	assert.Equal(t, KindScraping, KindOf(outer))
	assert.ErrorIs(t, outer, ErrElementNotFound)
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
