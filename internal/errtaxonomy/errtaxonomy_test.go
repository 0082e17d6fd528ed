package errtaxonomy_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flemosr/quantoxide-sub000/internal/errtaxonomy"
)

func TestTierOf_UnwrapsWrappedError(t *testing.T) {
	base := errtaxonomy.RecoverableErr("sync", errors.New("timeout"))
	wrapped := fmt.Errorf("fetching candles: %w", base)

	assert.Equal(t, errtaxonomy.Recoverable, errtaxonomy.TierOf(wrapped))
}

func TestTierOf_DefaultsToFatalForUntaggedError(t *testing.T) {
	assert.Equal(t, errtaxonomy.Fatal, errtaxonomy.TierOf(errors.New("boom")))
}

func TestGuard_RecoversPanic(t *testing.T) {
	err := errtaxonomy.Guard("operator", func() error {
		panic("boom")
	})
	assert.Error(t, err)
	assert.Equal(t, errtaxonomy.Panic, errtaxonomy.TierOf(err))
}

func TestGuard_PassesThroughNormalError(t *testing.T) {
	want := errors.New("bad input")
	err := errtaxonomy.Guard("validation", func() error { return want })
	assert.ErrorIs(t, err, want)
}
