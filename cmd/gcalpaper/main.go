package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gcalpaper/internal/aio"
	"gcalpaper/internal/auth"
	"gcalpaper/internal/backoff"
	"gcalpaper/internal/battery"
	"gcalpaper/internal/buzzer"
	"gcalpaper/internal/config"
	"gcalpaper/internal/device"
	"gcalpaper/internal/display"
	"gcalpaper/internal/fault"
	"gcalpaper/internal/gcal"
	"gcalpaper/internal/ics"
	"gcalpaper/internal/indicator"
	"gcalpaper/internal/light"
	appLog "gcalpaper/internal/log"
	"gcalpaper/internal/power"
	"gcalpaper/internal/render"
	"gcalpaper/internal/sleepmem"
	"gcalpaper/internal/timefmt"
	"gcalpaper/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	wake       string
	once       bool
	debug      bool
}

func main() {
	flags := parseFlags()
	appLog.Info("gcalpaper starting", "version", "0.1.0")

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	wake, err := power.ParseWakeEvent(flags.wake)
	if err != nil {
		appLog.Error("bad -wake flag", err)
		os.Exit(2)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.RefreshCron,
		"calendar_source", conf.CalendarSource,
		"time_sync", conf.TimeSync,
		"state_driver", conf.State.Driver,
		"hardware", conf.Hardware.Enabled,
		"panel", conf.Display.Panel,
		"wake", wake.String(),
		"once", flags.once,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, conf, wake, flags.once)
	stop()
	appLog.Info("gcalpaper exiting", "code", code)
	appLog.Sync()
	os.Exit(code)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/gcalpaper/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP status listen address (overrides config if set)")
	flag.StringVar(&cfg.wake, "wake", "cold", "Wake cause for the first cycle: cold, timer or button")
	flag.BoolVar(&cfg.once, "once", false, "Handle one wake and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")

	flag.Parse()

	return cfg
}

// run wires the device together and drives it. The return value is the
// process exit code.
func run(ctx context.Context, conf *config.Config, wake power.WakeEvent, once bool) int {
	loc, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		appLog.Error("invalid timezone", err, "timezone", conf.Timezone)
		return 1
	}
	schedule, err := conf.RefreshSchedule()
	if err != nil {
		appLog.Error("invalid refresh schedule", err)
		return 1
	}

	store, err := sleepmem.Open(conf.State)
	if err != nil {
		appLog.Error("failed to open state store", err, "driver", conf.State.Driver, "path", conf.State.Path)
		return 1
	}
	if c, ok := store.(interface{ Close() error }); ok {
		defer c.Close()
	}
	tracker, err := backoff.NewTracker(store, backoff.Policy{
		Min:      time.Duration(conf.Backoff.MinSeconds) * time.Second,
		Max:      time.Duration(conf.Backoff.MaxSeconds) * time.Second,
		MaxCount: conf.Backoff.MaxCount,
	})
	if err != nil {
		appLog.Error("invalid backoff policy", err)
		return 1
	}

	aioClient := aio.NewClient("", conf.Secrets.AIOUsername, conf.Secrets.AIOKey, nil)
	var clock device.Clock = aio.SystemClock{Loc: loc}
	if conf.TimeSync == "aio" {
		clock = aio.NewTimeSource(aioClient, loc)
	}

	authn, calendar, err := calendarSource(ctx, conf, loc)
	if err != nil {
		appLog.Error("failed to set up calendar source", err, "source", conf.CalendarSource)
		return 1
	}

	fonts, err := render.LoadFonts(conf.Display.WeatherFont)
	if err != nil {
		appLog.Error("failed to load fonts", err, "weather_font", conf.Display.WeatherFont)
		return 1
	}

	hw := openHardware(conf)
	defer hw.close()

	var sinks display.MultiSink
	var preview *display.PNGSink
	if conf.Display.PreviewPath != "" {
		preview = display.NewPNGSink(conf.Display.PreviewPath)
		sinks = append(sinks, preview)
	}
	canvas := render.PanelCanvas
	if hw.panel != nil {
		sinks = append(sinks, hw.panel)
		b := hw.panel.Bounds()
		canvas = render.Canvas{Width: b.Dx(), Height: b.Dy()}
	}

	rollover := timefmt.RolloverLegacy
	if conf.NormalizeEndOfDay {
		rollover = timefmt.RolloverNormalize
	}

	session, err := device.New(device.Options{
		Backoff:         tracker,
		Clock:           clock,
		Auth:            authn,
		Calendar:        calendar,
		Weather:         aio.NewWeatherSource(aioClient, conf.Secrets.WeatherLocationID),
		Indicator:       hw.pixel,
		Light:           hw.light,
		Battery:         hw.battery,
		Buzzer:          hw.buzzer,
		Sink:            sinks,
		Fonts:           fonts,
		Schedule:        schedule,
		Rollover:        rollover,
		Canvas:          canvas,
		LowBatteryVolts: conf.Hardware.LowBatteryVolts,
		MaxEvents:       conf.MaxEvents,
	})
	if err != nil {
		appLog.Error("failed to build device session", err)
		return 1
	}

	if conf.Listen != "" && !once {
		deps := web.Deps{State: tracker, Cycles: session, Battery: hw.battery}
		if preview != nil {
			deps.Preview = preview
		}
		srv := web.NewServer(conf.BasicAuth, deps)
		go func() {
			if err := web.StartServer(ctx, conf.Listen, srv); err != nil {
				appLog.Error("HTTP server stopped", err)
			}
		}()
	}

	err = session.Run(ctx, hw.sleeper, wake, once)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case fault.KindOf(err) == fault.BackoffExhausted:
		session.Fail()
		appLog.Error("giving up until the next reset", err)
		return 1
	default:
		appLog.Error("device stopped", err)
		return 1
	}
}

// calendarSource returns the authenticator and calendar collaborator for
// the configured source. ICS feeds need no token.
func calendarSource(ctx context.Context, conf *config.Config, loc *time.Location) (device.Authenticator, device.CalendarSource, error) {
	switch conf.CalendarSource {
	case config.SourceICS:
		f := ics.NewFetcher(conf.ICSCacheDir, nil)
		return noAuth{}, ics.NewCalendar(f, ics.SourcesFromConfig(conf.ICS), loc), nil
	case config.SourceGoogle:
		a := auth.New(conf.Secrets, auth.Options{})
		c, err := gcal.New(ctx, a.Client(ctx), conf.Secrets.CalendarID)
		if err != nil {
			return nil, nil, err
		}
		return a, c, nil
	default:
		return nil, nil, fmt.Errorf("unknown calendar source %q", conf.CalendarSource)
	}
}

type noAuth struct{}

func (noAuth) Refresh(context.Context) error { return nil }
func (noAuth) Expired() bool                 { return false }

// hardware holds the peripherals. With hardware disabled, or when a part
// can't be opened, the matching field keeps its no-op stand-in.
type hardware struct {
	sleeper power.Sleeper
	pixel   indicator.Indicator
	light   light.Sensor
	battery battery.Reader
	buzzer  buzzer.Buzzer
	panel   *display.PanelSink
	closers []func() error
}

func openHardware(conf *config.Config) *hardware {
	h := &hardware{
		sleeper: power.TimerSleeper{},
		pixel:   indicator.Nop{},
		light:   light.Fixed{},
		battery: battery.Fixed{Status: battery.Status{Percent: 100}},
		buzzer:  buzzer.Nop{},
	}
	hc := conf.Hardware

	if conf.Display.Panel {
		panel, closer, err := display.OpenPanel(conf.Display.PanelSPIPort)
		if err != nil {
			appLog.Error("e-paper panel unavailable; preview only", err, "port", conf.Display.PanelSPIPort)
		} else {
			h.panel = panel
			h.closers = append(h.closers, closer)
		}
	}
	if !hc.Enabled {
		return h
	}

	if b, err := power.OpenButtonSleeper(hc.ButtonPin); err != nil {
		appLog.Error("button unavailable; timer wakes only", err, "pin", hc.ButtonPin)
	} else {
		h.sleeper = b
	}
	if s, closer, err := light.OpenI2C(hc.I2CBus, hc.LightAddr); err != nil {
		appLog.Warn("light sensor unavailable", "err", err)
	} else {
		h.light = s
		h.closers = append(h.closers, closer)
	}
	var closer func() error
	h.battery, closer = battery.DefaultReader(hc.I2CBus, hc.BatteryAddr)
	h.closers = append(h.closers, closer)
	if b, err := buzzer.OpenPWM(hc.BuzzerPin); err != nil {
		appLog.Warn("buzzer unavailable", "err", err, "pin", hc.BuzzerPin)
	} else {
		h.buzzer = b
	}
	if s, closer, err := indicator.OpenNRZ(hc.PixelSPIPort, hc.PixelCount); err != nil {
		appLog.Warn("indicator unavailable", "err", err, "port", hc.PixelSPIPort)
	} else {
		h.pixel = s
		h.closers = append(h.closers, closer)
	}
	return h
}

func (h *hardware) close() {
	var errs []error
	for i := len(h.closers) - 1; i >= 0; i-- {
		errs = append(errs, h.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		appLog.Warn("closing peripherals", "err", err)
	}
}
