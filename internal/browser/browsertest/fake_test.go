package browsertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReset(t *testing.T) {
	f := New()
	f.SetURL("http://localhost:8080/projects")
	f.SetStorage("token", "abc")
	f.SetText(".el-form-item__error", "请输入密码")
	f.Show(".login-button")
	require.NoError(t, f.Click(context.Background(), ".login-button"))

	require.NoError(t, f.Reset(context.Background()))

	assert.Equal(t, "about:blank", f.URL)
	assert.Empty(t, f.Storage)
	assert.Empty(t, f.Visible)
	assert.Empty(t, f.Clicks)
	assert.Equal(t, 1, f.Resets)

	_, ok, err := f.LocalStorage(context.Background(), "token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReset_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, New().Reset(ctx), context.Canceled)
}

func TestHide(t *testing.T) {
	f := New()
	f.Show(".a", ".b")
	f.Hide(".a")

	assert.ErrorIs(t, f.WaitVisible(context.Background(), ".a"), ErrNotVisible)
	assert.NoError(t, f.WaitVisible(context.Background(), ".b"))
}
