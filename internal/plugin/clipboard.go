package plugin

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// SystemClipboard 写入系统剪贴板
type SystemClipboard struct{}

func (SystemClipboard) WriteText(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
