package reconcile

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tildaslashalef/reposync/internal/loggy"
)

func TestStripLegacyPrefix(t *testing.T) {
	v := NewVerifier(nil, []string{"group_", "grp-", "kb-"}, loggy.NewNoopLogger())

	assert.Equal(t, "123", v.StripLegacyPrefix("group_123"))
	assert.Equal(t, "abc", v.StripLegacyPrefix("grp-abc"))
	assert.Equal(t, "group_9", v.StripLegacyPrefix("kb-group_9"), "only the first matching prefix is removed")
	assert.Equal(t, "plain-id", v.StripLegacyPrefix("plain-id"))
	assert.Equal(t, "kb-", v.StripLegacyPrefix("kb-"), "a bare prefix is kept")

	ordered := NewVerifier(nil, []string{"kb-", "kb-x"}, loggy.NewNoopLogger())
	assert.Equal(t, "x1", ordered.StripLegacyPrefix("kb-x1"), "prefixes are tried in order")
}

func TestVerifierResolve(t *testing.T) {
	var probed []string
	present := map[string]bool{"123": true}

	probe := func(_ context.Context, id string) error {
		probed = append(probed, id)
		if present[id] {
			return nil
		}
		return rejected(http.StatusNotFound)
	}
	v := NewVerifier(probe, []string{"group_"}, loggy.NewNoopLogger())
	ctx := context.Background()

	id, ok := v.Resolve(ctx, "group_123")
	assert.True(t, ok)
	assert.Equal(t, "123", id)

	assert.True(t, v.Verify(ctx, "123"))
	assert.False(t, v.Verify(ctx, "999"))

	_, ok = v.Resolve(ctx, "  ")
	assert.False(t, ok)

	assert.Equal(t, []string{"123", "123", "999"}, probed, "blank ids are never probed")
}

func TestVerifierCollapsesErrors(t *testing.T) {
	for _, err := range []error{
		errConnRefused,
		context.DeadlineExceeded,
		rejected(http.StatusInternalServerError),
		errors.New("garbled json"),
	} {
		v := NewVerifier(func(context.Context, string) error { return err }, nil, loggy.NewNoopLogger())
		assert.False(t, v.Verify(context.Background(), "abc"), "error %v", err)
	}
}
