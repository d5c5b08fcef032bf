package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/pion/mediadevices/pkg/driver/camera"

	"github.com/saturnino-fabrica-de-software/dermalens/internal/capture"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/chatbot"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/config"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/detection"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/diagnosis"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/domain"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/media"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/media/mock"
	"github.com/saturnino-fabrica-de-software/dermalens/internal/sampler"
)

var errInterrupted = errors.New("capture interrupted")

type options struct {
	imagePath string
	diagnose  bool
	symptoms  string
	language  string
	chat      string
	timeout   time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.imagePath, "image", "", "use this image file instead of the camera")
	flag.BoolVar(&opts.diagnose, "diagnose", false, "submit the captured image for analysis")
	flag.StringVar(&opts.symptoms, "symptoms", "", "symptom description sent with -diagnose")
	flag.StringVar(&opts.language, "lang", "en", "language of the symptom description")
	flag.StringVar(&opts.chat, "chat", "", "first question for the chatbot after -diagnose")
	flag.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "give up if no photo is taken in time")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Environment)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	img, err := captureImage(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}

	path, err := writeImage(cfg.OutputDir, img)
	if err != nil {
		return err
	}
	fmt.Println(path)

	if !opts.diagnose {
		return nil
	}
	return diagnose(ctx, cfg, opts, img, logger)
}

func captureImage(ctx context.Context, cfg *config.Config, opts options, logger *slog.Logger) (*domain.CapturedImage, error) {
	var source interface {
		media.Source
		HasVideoInput() bool
	}
	switch cfg.CameraBackend {
	case "mock":
		source = mock.New()
	default:
		source = media.NewDeviceSource(logger)
	}

	camera := media.NewController(source, cfg.MetadataTimeout, logger)

	var dialer capture.Dialer
	endpoint, err := cfg.DetectionEndpoint()
	if err != nil {
		logger.Warn("detection service disabled, using manual shutter", slog.Any("error", err))
	} else {
		dialer = capture.NewDetectionDialer(detection.NewDialer(endpoint, cfg.DetectionToken, logger))
	}

	snapshots := make(chan capture.Snapshot, 32)
	ctrl := capture.NewController(camera, dialer, source, capture.Config{
		UserAgent:      cfg.UserAgent,
		ReconnectDelay: cfg.ReconnectDelay,
		StabilizeDelay: cfg.StabilizeDelay,
		Sampler:        sampler.Config{Interval: cfg.SampleInterval, Quality: sampler.DefaultConfig().Quality},
	}, logger).WithObserver(func(s capture.Snapshot) {
		// Drop the oldest snapshot when behind so the latest state always arrives
		for {
			select {
			case snapshots <- s:
				return
			default:
			}
			select {
			case <-snapshots:
			default:
			}
		}
	})

	runCtx, cancel := context.WithCancel(context.Background())
	go ctrl.Run(runCtx)
	defer func() {
		cancel()
		<-ctrl.Done()
	}()

	if opts.imagePath != "" {
		data, err := os.ReadFile(opts.imagePath)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		if err := ctrl.SetImageFromFile(data); err != nil {
			return nil, err
		}
		return ctrl.Snapshot().Image, nil
	}

	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}

	// Enter takes the photo manually
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := ctrl.ManualCapture(); err != nil {
				logger.Info("manual capture rejected", slog.Any("error", err))
			}
		}
	}()

	timeout := time.NewTimer(opts.timeout)
	defer timeout.Stop()

	var last capture.Snapshot
	for {
		select {
		case <-ctx.Done():
			ctrl.Unmount()
			return nil, errInterrupted
		case <-timeout.C:
			ctrl.Stop()
			return nil, fmt.Errorf("no photo taken within %s", opts.timeout)
		case snap := <-snapshots:
			report(logger, last, snap)
			last = snap

			switch snap.State {
			case domain.StateCaptured:
				if snap.Image != nil {
					return snap.Image, nil
				}
			case domain.StateError:
				return nil, fmt.Errorf("capture failed: %s", snap.Error)
			case domain.StateStopped:
				return nil, errInterrupted
			}
		}
	}
}

// report logs what changed between two snapshots
func report(logger *slog.Logger, prev, snap capture.Snapshot) {
	if snap.State != prev.State || snap.Mode != prev.Mode {
		logger.Info("capture state",
			slog.String("state", string(snap.State)),
			slog.String("mode", string(snap.Mode)),
		)
		if snap.State == domain.StateStreaming && snap.Mode == domain.ModeManualShutter {
			fmt.Fprintln(os.Stderr, "press Enter to take the photo")
		}
	}
	if snap.ChannelState != prev.ChannelState {
		logger.Info("detection channel", slog.String("state", string(snap.ChannelState)))
	}
	if snap.Detection.Feedback != "" && snap.Detection.Feedback != prev.Detection.Feedback {
		fmt.Fprintln(os.Stderr, snap.Detection.Feedback)
	}
	if snap.Countdown.Active && snap.Countdown.Remaining != prev.Countdown.Remaining {
		fmt.Fprintf(os.Stderr, "%d...\n", snap.Countdown.Remaining)
	}
	if snap.Notice != "" && snap.Notice != prev.Notice {
		logger.Warn(snap.Notice)
	}
}

func writeImage(dir string, img *domain.CapturedImage) (string, error) {
	if img == nil || len(img.Data) == 0 {
		return "", domain.ErrCaptureFailed
	}

	ext := ".jpg"
	if img.ContentType == "image/png" {
		ext = ".png"
	}
	name := fmt.Sprintf("capture-%s%s", img.CapturedAt.Format("20060102-150405"), ext)
	path := filepath.Join(dir, name)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

func diagnose(ctx context.Context, cfg *config.Config, opts options, img *domain.CapturedImage, logger *slog.Logger) error {
	diagnosisCfg := diagnosis.DefaultConfig()
	diagnosisCfg.BaseURL = cfg.AIBaseURL
	client := diagnosis.NewClient(diagnosisCfg, logger)

	symptoms := opts.symptoms
	if symptoms != "" {
		if refined := client.Refine(ctx, symptoms, opts.language); refined != nil {
			symptoms = *refined
		}
	}

	result, err := client.Diagnose(ctx, diagnosis.Request{
		Image:    img.Data,
		Symptoms: symptoms,
	})
	if err != nil {
		return fmt.Errorf("diagnose: %w", err)
	}

	out := json.NewEncoder(os.Stdout)
	out.SetIndent("", "  ")
	if err := out.Encode(result); err != nil {
		return fmt.Errorf("print diagnosis: %w", err)
	}

	if opts.chat == "" {
		return nil
	}

	chatCfg := chatbot.DefaultConfig()
	chatCfg.BaseURL = cfg.ChatbotBaseURL
	chat := chatbot.NewClient(chatCfg, logger)

	if !chat.HealthCheck(ctx) {
		return errors.New("chatbot service unavailable")
	}

	similar := make([]string, 0, len(result.SimilarDiseases))
	for _, d := range result.SimilarDiseases {
		similar = append(similar, d.Name)
	}

	resp, err := chat.Start(ctx, chatbot.AnalysisContext{
		PredictedDisease: result.PredictedDisease,
		Confidence:       result.Confidence,
		Summary:          result.Summary,
		Recommendation:   result.Recommendation,
		SimilarDiseases:  similar,
		Symptoms:         symptoms,
	}, opts.chat)
	if err != nil {
		return fmt.Errorf("start chat: %w", err)
	}

	fmt.Println(resp.Reply)
	return nil
}
