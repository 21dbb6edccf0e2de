package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeIcon(t *testing.T) {
	assert.Equal(t, "* ", SafeIcon("*"))
	assert.Equal(t, "✅  ", SafeIcon(IconPassed))
	assert.Equal(t, "❌  密码错误", IconText(IconFailed, "密码错误"))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, 8, Width("成功登录"))
	assert.Equal(t, "成功登录  |", PadRight("成功登录", 10)+"|")
	assert.Equal(t, "login     |", PadRight("login", 10)+"|")
	assert.Equal(t, "too long", PadRight("too long", 3))
}
