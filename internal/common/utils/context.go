package utils

import (
	"context"
	"fmt"
	"time"
)

// RunWithTimeout は fn を timeout 以内で実行します
// 期限を超えた場合は fn の終了を待たずにエラーを返します。fn には期限付きのコンテキストが渡されます
func RunWithTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// fn が期限後に終了してもブロックしないようにバッファ付き
	errChan := make(chan error, 1)
	go func() {
		errChan <- fn(ctx)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return fmt.Errorf("process timed out after %v: %w", timeout, ctx.Err())
	}
}
