package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/uma-arai/sbcntr-library/internal/common/config"
	"github.com/uma-arai/sbcntr-library/internal/common/utils"
	"github.com/uma-arai/sbcntr-library/internal/service/batch"
)

const (
	projectName = "sbcntr-library-notification-batch"

	emptyInput = `{"notifications":[]}`
)

func main() {
	// コマンドライン引数のパース
	timeout := flag.Duration("timeout", 5*time.Minute, "バッチ処理のタイムアウト時間")
	inputFile := flag.String("input", "", "予約バッチのタスク出力(JSON)を読み込むファイル。ローカル実行用")
	flag.Parse()

	// 最後の引数として予約バッチのタスク出力(JSON)を受け取る
	input, err := readInput(*inputFile)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}

	notifications, err := batch.ParseNotifications(input)
	if err != nil {
		log.Fatalf("Failed to parse notifications: %v\nStack trace:\n%s", err, debug.Stack())
	}

	// 設定の読み込み
	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v\nStack trace:\n%s", err, debug.Stack())
	}

	// X-Ray設定
	if cfg.EnableTracing {
		if err := xray.Configure(xray.Config{
			DaemonAddr:     "127.0.0.1:2000", // X-Rayデーモンのアドレス
			ServiceVersion: "1.0.0",
		}); err != nil {
			log.Printf("Failed to configure X-Ray: %v", err)
			if configErr := xray.Configure(xray.Config{}); configErr != nil {
				log.Fatalf("Failed to configure default X-Ray settings: %v", configErr)
			}
		}
		os.Setenv("AWS_XRAY_CONTEXT_MISSING", "LOG_ERROR")
	}

	// 通知バッチサービスを作成
	service, err := batch.NewNotificationBatchService(cfg)
	if err != nil {
		log.Fatalf("Failed to create notification batch service: %v", err)
	}
	defer service.Close()
	service.SetArgs(notifications)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// X-Rayセグメントの作成
	if cfg.EnableTracing {
		var seg *xray.Segment
		ctx, seg = xray.BeginSegment(ctx, projectName)
		defer seg.Close(nil)

		if err := seg.AddMetadata("notification_count", len(notifications)); err != nil {
			log.Printf("Failed to add notification_count metadata: %v", err)
		}
	}

	// シグナルハンドリング
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// バッチ処理の実行
	errChan := make(chan error, 1)
	go func() {
		errChan <- utils.RunWithTimeout(ctx, *timeout, service.Run)
	}()

	// シグナルを待機
	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			log.Printf("Batch process failed: %v", err)
			service.Close()
			os.Exit(1)
		}
		log.Println("Batch process completed successfully")
	}
}

// readInput は -input のファイル、最後の引数の順でタスク入力を取得します
// ENV=LOCALで入力が無い場合は空の通知一覧として扱います
func readInput(path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	if flag.NArg() > 0 && flag.Arg(flag.NArg()-1) != "" {
		return []byte(flag.Arg(flag.NArg() - 1)), nil
	}
	if os.Getenv("ENV") == "LOCAL" {
		return []byte(emptyInput), nil
	}
	return nil, errors.New("task input is required")
}
