package errors

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", New(ErrConfig, "ngrams must be > 0"), ExitConfig},
		{"io", Wrap(ErrIO, fs.ErrPermission, "reading %s", "a.c"), ExitIO},
		{"empty", Newf(ErrEmptyCorpus, "no files under %d folders", 2), ExitEmptyCorpus},
		{"invariant", New(ErrInvariant, "duplicate id"), ExitInvariant},
		{"announce", New(ErrAnnounce, "kafka down"), ExitAnnounce},
		{"other", errors.New("boom"), ExitInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestWrapKeepsBothChains(t *testing.T) {
	err := Wrap(ErrIO, fs.ErrNotExist, "reading %s", "x.go")
	assert.ErrorIs(t, err, ErrIO)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Contains(t, err.Error(), "x.go")
	assert.NoError(t, Wrap(ErrIO, nil, "unused"))
}

func TestAppErrorMessage(t *testing.T) {
	err := Newf(ErrConfig, "missing section %q", "DOCUMENTS")
	assert.Equal(t, `config error: missing section "DOCUMENTS"`, err.Error())
	assert.ErrorIs(t, err, ErrConfig)
}
