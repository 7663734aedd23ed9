package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/emotion-dashboard/internal/config"
	"github.com/zhouzirui/emotion-dashboard/internal/service/capture"
	"github.com/zhouzirui/emotion-dashboard/internal/service/chat"
	emotionservice "github.com/zhouzirui/emotion-dashboard/internal/service/emotion"
	"github.com/zhouzirui/emotion-dashboard/internal/storage/cookie"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "detect", "测试模式: detect、latest 或 chat")
	source := flag.String("source", cfg.Capture.Source, "摄像头来源，例如 dir:./frames 或 ffmpeg:/dev/video0")
	frames := flag.Int("frames", cfg.Capture.Frames, "每次采集的帧数")
	interval := flag.Duration("interval", cfg.Capture.Interval, "两帧之间的间隔")
	message := flag.String("message", "", "chat 模式下发送的文本")
	token := flag.String("token", cfg.Chat.SeedToken, "chat 模式使用的 Bearer 令牌")
	saveDir := flag.String("save", "", "保存采集到的帧的目录，留空则不保存")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := newBackendClient(cfg)
	if err != nil {
		log.Fatalf("打开 cookie 文件失败: %v", err)
	}
	svc := emotionservice.NewService(emotionservice.Config{BaseURL: cfg.Backend.BaseURL, HTTPClient: client})

	switch *mode {
	case "latest":
		d := svc.Latest(ctx)
		log.Printf("后端最近情绪: label=%s fallback=%v err=%v", d.Label, d.Fallback, d.Err)
	case "detect", "chat":
		label := runDetect(ctx, svc, cfg, *source, *frames, *interval, *saveDir)
		if *mode == "chat" {
			runChat(ctx, chat.NewDispatcher(cfg.Backend.BaseURL, client), *token, *message, label)
		}
	default:
		flag.Usage()
		log.Fatal("请通过 -mode=detect、-mode=latest 或 -mode=chat 指定测试模式")
	}
}

// newBackendClient shares the dashboard's cookie file so uploads carry the same credentials.
func newBackendClient(cfg *config.Config) (*http.Client, error) {
	jar, err := cookie.Open(cfg.Storage.CookieFile, cfg.Server.Origin)
	if err != nil {
		return nil, err
	}
	return &http.Client{Jar: jar.HTTPJar(), Timeout: cfg.Backend.Timeout}, nil
}

func runDetect(ctx context.Context, svc *emotionservice.Service, cfg *config.Config, sourceSpec string, n int, interval time.Duration, saveDir string) string {
	src, err := capture.ParseSource(sourceSpec, cfg.Capture.InputFormat)
	if err != nil {
		log.Fatalf("摄像头来源无效: %v", err)
	}

	log.Printf("开始采集: source=%s frames=%d interval=%s", sourceSpec, n, interval)
	frames := capture.Collect(capture.Burst(ctx, src, n, interval, nil))
	if len(frames) == 0 {
		log.Fatal("没有采集到任何帧")
	}
	log.Printf("采集完成: %d/%d 帧", len(frames), n)

	if saveDir != "" {
		if err := os.MkdirAll(saveDir, 0o755); err != nil {
			log.Fatalf("创建目录失败: %v", err)
		}
		for _, f := range frames {
			if err := os.WriteFile(filepath.Join(saveDir, f.FileName()), f.Data, 0o644); err != nil {
				log.Fatalf("写入帧失败: %v", err)
			}
		}
		log.Printf("帧已保存到 %s", saveDir)
	}

	d := svc.Detect(ctx, frames)
	log.Printf("情绪识别结果: label=%s detected=%v fallback=%v err=%v", d.Label, d.Detected, d.Fallback, d.Err)
	return d.Label
}

func runChat(ctx context.Context, dispatcher *chat.Dispatcher, token, message, label string) {
	if strings.TrimSpace(message) == "" {
		log.Fatal("chat 模式需要通过 -message 提供文本")
	}

	reply, err := dispatcher.Dispatch(ctx, token, message, label)
	if err != nil {
		log.Fatalf("聊天调用失败: %v", err)
	}
	log.Printf("回复: %q (summaries=%d)", reply.Message, len(reply.ChatHistory))
}
