package utils

import (
	"fmt"
	"runtime/debug"
)

// GetStackWithError はエラーに呼び出し時点のスタックトレースを付与します
// バッチの失敗ログ用で、元のエラーは errors.Is / errors.As で辿れます
func GetStackWithError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w\nStack trace:\n%s", err, debug.Stack())
}
