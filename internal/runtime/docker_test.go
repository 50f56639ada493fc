package runtime

import (
	"errors"
	"fmt"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
)

func TestTranslateErr(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{
			name: "nil stays nil",
			in:   nil,
			want: nil,
		},
		{
			name: "engine not-found becomes ErrNotFound",
			in:   fmt.Errorf("No such container: abc123: %w", cerrdefs.ErrNotFound),
			want: ErrNotFound,
		},
		{
			name: "removal conflict becomes ErrRemovalInProgress",
			in:   fmt.Errorf("removal of container abc123 is already in progress: %w", cerrdefs.ErrConflict),
			want: ErrRemovalInProgress,
		},
		{
			name: "port allocation failure becomes ErrPortInUse",
			in:   errors.New("driver failed programming external connectivity: Bind for 127.0.0.1:3000 failed: port is already allocated"),
			want: ErrPortInUse,
		},
		{
			name: "bind failure becomes ErrPortInUse",
			in:   errors.New("listen tcp 127.0.0.1:3000: bind: address already in use"),
			want: ErrPortInUse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateErr(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestTranslateErr_UnclassifiedErrorsPassThrough(t *testing.T) {
	engineErr := errors.New("some engine error")
	assert.Equal(t, engineErr, translateErr(engineErr))

	// A conflict without the removal marker stays untranslated.
	conflict := fmt.Errorf("name already taken: %w", cerrdefs.ErrConflict)
	got := translateErr(conflict)
	assert.NotErrorIs(t, got, ErrRemovalInProgress)
	assert.NotErrorIs(t, got, ErrNotFound)
}
