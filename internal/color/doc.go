// Package color holds the palette and icon helpers the console reporter
// renders with.
//
// Colors are lipgloss.AdaptiveColor values, so the same palette works on dark
// and light terminals. lipgloss degrades them to 256 or 16 colors, or none
// when NO_COLOR is set or output is not a terminal.
//
// # Usage Example
//
//	fmt.Println(color.Passed.Render(color.IconText(color.IconPassed, "成功登录")))
//	fmt.Println(color.Failed.Render(color.IconText(color.IconFailed, "密码错误")))
package color
