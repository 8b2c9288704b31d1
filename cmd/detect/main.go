package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-yolo/broadcast"
	"github.com/nvr-ai/go-yolo/config"
	"github.com/nvr-ai/go-yolo/detector"
	"github.com/nvr-ai/go-yolo/inference"
	"github.com/nvr-ai/go-yolo/logging"
	"github.com/nvr-ai/go-yolo/models"
	"github.com/nvr-ai/go-yolo/models/postprocess"
	"github.com/nvr-ai/go-yolo/profiler"
	"github.com/nvr-ai/go-yolo/render"
	"github.com/nvr-ai/go-yolo/store/sqlite"
)

func main() {
	var (
		configPath string
		videoPath  string
		framesDir  string
		deviceID   int
		showWindow bool
		listenAddr string
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&videoPath, "video", "", "Path to a video file (.mp4, .avi, .mov)")
	flag.StringVar(&framesDir, "frames", "", "Directory of frame-N images to process in order")
	flag.IntVar(&deviceID, "device", 0, "Video capture device ID")
	flag.BoolVar(&showWindow, "show-window", false, "Show the annotated frames in a window")
	flag.StringVar(&listenAddr, "listen", "", "Serve results over websocket on this address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logging.Fatal(logging.Fields{"error": err.Error()}, "[main] invalid configuration")
	}
	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	if _, err := logging.Setup(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "[main] invalid log level, using info")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, framesDir, videoPath, deviceID, showWindow); err != nil {
		logging.Fatal(logging.Fields{"error": err.Error()}, "[main] detector stopped")
	}
}

func loadClasses(cfg *config.Config) (*models.OutputClassSet, error) {
	if cfg.Model.LabelsPath == "" {
		return models.YOLOClasses, nil
	}
	return models.LoadClassFile(cfg.Model.LabelsPath)
}

func run(ctx context.Context, cfg *config.Config, framesDir, videoPath string, deviceID int, showWindow bool) error {
	classes, err := loadClasses(cfg)
	if err != nil {
		return err
	}

	args, err := cfg.SessionArgs()
	if err != nil {
		return err
	}
	factory := inference.NewSessionFactory(args)
	engine, err := factory(args.Backend)
	if err != nil {
		return err
	}

	prof := profiler.New(profiler.Options{ReportInterval: cfg.ReportInterval})
	det, err := detector.New(engine, classes, &cfg.Postprocess)
	if err != nil {
		engine.Close()
		return err
	}
	defer det.Close()
	det.WithProfiler(prof)

	prof.Start(ctx)
	defer prof.Stop()

	var hub *broadcast.Hub
	if cfg.Server.ListenAddr != "" {
		hub = broadcast.NewHub(cfg.Server.Backlog)
		go hub.Run(ctx)

		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		server := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logging.Info(logging.Fields{"addr": cfg.Server.ListenAddr}, "[main] serving results on /ws")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error(logging.Fields{"error": err.Error()}, "[main] result server failed")
			}
		}()
		defer server.Close()
	}

	var journal *sqlite.Journal
	if cfg.Journal.Path != "" {
		if journal, err = sqlite.Open(cfg.Journal.Path); err != nil {
			return err
		}
		defer journal.Close()
	}

	source, err := openSource(framesDir, videoPath, deviceID)
	if err != nil {
		return err
	}
	defer source.Close()
	logging.Info(logging.Fields{"source": source.String(), "backend": args.Backend}, "[main] detecting")

	worker := detector.NewWorker(det, cfg.Worker, prof)
	worker.Start(ctx)

	frames := newFrameStore()
	display := make(chan gocv.Mat, 1)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		consume(worker, det, factory, args.Backend, frames, hub, journal, display, showWindow)
	}()

	var window *gocv.Window
	if showWindow {
		window = gocv.NewWindow("Detections")
		defer window.Close()
	}

	img := gocv.NewMat()
	defer img.Close()
	for ctx.Err() == nil {
		if ok := source.Read(&img); !ok {
			logging.Info(logging.Fields{"source": source.String()}, "[main] end of input")
			break
		}
		if img.Empty() {
			continue
		}

		stopDecode := prof.StartOperation(profiler.StageDecode)
		rgb, err := img.ToImage()
		stopDecode()
		if err != nil {
			logging.Warn(logging.Fields{"error": err.Error()}, "[main] failed to convert frame")
			continue
		}

		id := logging.NewFrameID()
		if showWindow {
			frames.put(id, img.Clone())
		}
		if !worker.Submit(detector.Job{ID: id, Image: rgb, Captured: time.Now()}) {
			frames.drop(id)
		}

		if window != nil {
			select {
			case mat := <-display:
				window.IMShow(mat)
				mat.Close()
			default:
			}
			if window.WaitKey(1) == 27 {
				break
			}
		}
	}

	worker.Close()
	<-consumed
	select {
	case mat := <-display:
		mat.Close()
	default:
	}
	frames.closeAll()
	prof.Report()
	logging.Info(logging.Fields{"submitted": worker.Submitted(), "dropped": worker.Dropped()}, "[main] done")
	return nil
}

// consume handles every worker result: publish, journal, and hand the
// annotated frame to the display loop.
func consume(
	worker *detector.Worker,
	det *detector.Detector,
	factory inference.Factory,
	backend inference.Backend,
	frames *frameStore,
	hub *broadcast.Hub,
	journal *sqlite.Journal,
	display chan gocv.Mat,
	showWindow bool,
) {
	for f := range worker.Results() {
		mat, hasMat := frames.take(f.ID)

		if f.Err != nil {
			if errors.Is(f.Err, postprocess.ErrLabelOutOfRange) {
				logging.Fatal(logging.Fields{"frame_id": f.ID, "error": f.Err.Error()},
					"[main] model emitted a class outside the label file")
			}
			if backend.Accelerated() {
				if err := det.Restart(factory, inference.BackendCPU); err == nil {
					backend = inference.BackendCPU
				}
			}
			if hasMat {
				mat.Close()
			}
			continue
		}

		processed := broadcast.Publishable(f.Result)
		if hub != nil && processed {
			hub.Publish(f.ID, f.Result)
		}
		if journal != nil && processed {
			if err := journal.Record(f.ID, f.Result); err != nil {
				logging.WithFrame(f.ID).WithError(err).Warn("[main] failed to journal frame")
			}
		}

		if !hasMat {
			continue
		}
		if !showWindow {
			mat.Close()
			continue
		}
		if f.Result.Detected() {
			render.Overlay(&mat, f.Result.Boxes)
		}
		select {
		case display <- mat:
		default:
			mat.Close()
		}
	}
}

// frameStore keeps the source Mat of each in-flight frame for display.
type frameStore struct {
	mu   sync.Mutex
	mats map[string]gocv.Mat
}

func newFrameStore() *frameStore {
	return &frameStore{mats: make(map[string]gocv.Mat)}
}

func (s *frameStore) put(id string, mat gocv.Mat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mats[id] = mat
}

func (s *frameStore) take(id string) (gocv.Mat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mat, ok := s.mats[id]
	delete(s.mats, id)
	return mat, ok
}

func (s *frameStore) drop(id string) {
	if mat, ok := s.take(id); ok {
		mat.Close()
	}
}

func (s *frameStore) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, mat := range s.mats {
		mat.Close()
		delete(s.mats, id)
	}
}
