package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shaunagostinho/fuelmeter/internal/ambient"
	"github.com/shaunagostinho/fuelmeter/internal/ecu"
	"github.com/shaunagostinho/fuelmeter/internal/kline"
	"github.com/shaunagostinho/fuelmeter/internal/meter"
	"github.com/shaunagostinho/fuelmeter/internal/publish"
	"github.com/shaunagostinho/fuelmeter/internal/pulse"
	"github.com/shaunagostinho/fuelmeter/internal/server"
	"github.com/shaunagostinho/fuelmeter/internal/store"
	"github.com/shaunagostinho/fuelmeter/web"
)

// initRetryDelay separates handshake attempts.
const initRetryDelay = 3 * time.Second

func main() {
	configPath := flag.String("config", server.DefaultConfigPath, "Path to config file")
	demo := flag.Bool("demo", false, "Run against a simulated vehicle")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	dtc := flag.Bool("dtc", false, "Print stored and pending trouble codes, then exit")
	clearDTC := flag.Bool("clear-dtc", false, "Clear trouble codes, then exit")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] fuelmeter starting")

	cfg := server.LoadConfig(*configPath)
	if *demo {
		cfg.KLine.Type = "demo"
		cfg.Meter.Injector = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	mode, err := cfg.InitMode()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	var (
		bus     kline.Bus
		vehicle *ecu.DemoVehicle
	)
	switch cfg.KLine.Type {
	case "serial":
		sb, err := kline.OpenSerial(kline.SerialConfig{
			PortPath: cfg.KLine.PortPath,
			BaudRate: cfg.KLine.BaudRate,
		})
		if err != nil {
			log.Fatalf("[main] %v", err)
		}
		defer sb.Close()
		bus = sb
	default:
		vehicle = ecu.NewDemoVehicle()
		bus = vehicle
		log.Printf("[main] using %s", vehicle.Name())
	}

	client := kline.NewClient(bus, kline.Config{Init: mode, Debug: cfg.KLine.Debug})
	if !initWithRetry(ctx, client) {
		return
	}

	if *dtc || *clearDTC {
		if err := runDTC(client, *clearDTC); err != nil {
			log.Fatalf("[main] %v", err)
		}
		return
	}

	if err := run(ctx, cfg, client, vehicle); err != nil {
		log.Printf("[main] %v", err)
	}
}

// run wires the metering engine and its collaborators and blocks until ctx
// is cancelled.
func run(ctx context.Context, cfg *server.Config, client *kline.Client, vehicle *ecu.DemoVehicle) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		return fmt.Errorf("store dir: %w", err)
	}
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	var capture pulse.Capture
	switch {
	case cfg.Meter.Injector == "demo" && vehicle != nil:
		go vehicle.RunInjector(ctx, &capture)
	case cfg.Meter.Injector == "demo":
		log.Printf("[main] warning: demo injector needs the demo vehicle, no pulses will be captured")
	case cfg.Meter.Injector == "gpio":
		g, err := pulse.OpenGPIO(cfg.Meter.GPIO, &capture)
		if err != nil {
			return fmt.Errorf("injector input: %w", err)
		}
		defer g.Close()
	default:
		log.Printf("[main] warning: injector input %q, no pulses will be captured", cfg.Meter.Injector)
	}

	var amb meter.Ambient
	if cfg.Ambient.Enabled {
		if dev, err := ambient.OpenI2C(cfg.Ambient.Bus); err != nil {
			log.Printf("[main] ambient sensor disabled: %v", err)
		} else {
			defer dev.Close()
			sensor := ambient.NewBMP280(dev, cfg.Ambient)
			go sensor.Poll(ctx)
			amb = sensor
		}
	}

	m := meter.New(meter.Config{
		Period:    cfg.Period(),
		Cylinders: cfg.Meter.Cylinders,
		Debug:     cfg.KLine.Debug,
	}, ecu.NewSampler(client), &capture, amb)
	if err := m.Load(st); err != nil {
		log.Printf("[main] load stored totals: %v", err)
	}

	var pub server.Publisher
	if cfg.Redis.Enabled {
		r, err := publish.Dial(ctx, cfg.Redis)
		if err != nil {
			log.Printf("[main] redis disabled: %v", err)
		} else {
			defer r.Close()
			pub = r
		}
	}

	go m.Run(ctx)

	srv := server.New(cfg, m, st, pub, web.FS)
	log.SetOutput(io.MultiWriter(os.Stderr, srv.LogWriter()))
	defer log.SetOutput(os.Stderr)
	err = srv.Run(ctx)

	if cfg.Store.SaveOnExit {
		if _, serr := m.SaveOverwrite(st); serr != nil {
			log.Printf("[main] save on exit: %v", serr)
		}
	}
	return err
}

// initWithRetry runs the handshake every initRetryDelay until it succeeds.
// It returns false if ctx is cancelled first.
func initWithRetry(ctx context.Context, c *kline.Client) bool {
	for attempt := 1; ; attempt++ {
		err := c.Init()
		if err == nil {
			log.Printf("[kline] %v init succeeded (attempt %d)", c.Mode(), attempt)
			return true
		}
		log.Printf("[kline] %v init attempt %d failed: %v (retry in %v)", c.Mode(), attempt, err, initRetryDelay)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(initRetryDelay):
		}
	}
}

// runDTC prints the trouble codes and optionally clears them.
func runDTC(c *kline.Client, clearCodes bool) error {
	report := func(name string, read func() (int, error)) error {
		n, err := read()
		if err != nil {
			return fmt.Errorf("read %s codes: %w", name, err)
		}
		found := 0
		for i := 0; i < n; i++ {
			if code := kline.DecodeDTC(c.TroubleCode(i)); code != "" {
				fmt.Printf("%s: %s\n", name, code)
				found++
			}
		}
		if found == 0 {
			fmt.Printf("%s: none\n", name)
		}
		return nil
	}

	if err := report("stored", c.ReadTroubleCodes); err != nil {
		return err
	}
	if err := report("pending", c.ReadPendingTroubleCodes); err != nil {
		return err
	}
	if clearCodes {
		if err := c.ClearTroubleCodes(); err != nil {
			return fmt.Errorf("clear codes: %w", err)
		}
		fmt.Println("trouble codes cleared")
	}
	return nil
}
