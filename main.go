package main

import (
	"embed"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/events"

	appsvc "github.com/voicepadhq/voicepad/internal/app"
)

//go:embed all:frontend/dist
var assets embed.FS

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func setupLogging() {
	var handler slog.Handler
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler = tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: time.Kitchen})
	} else {
		handler = slog.NewTextHandler(os.Stderr, nil)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	setupLogging()
	slog.Info("starting voicepad", "version", version, "commit", commit, "date", date)

	appService := appsvc.New(version)

	app := application.New(application.Options{
		Name:        "Voicepad",
		Description: "Voice dictation pad",
		Services: []application.Service{
			application.NewService(appService),
		},
		Assets: application.AssetOptions{
			Handler: application.BundledAssetFileServer(assets),
		},
		Mac: application.MacOptions{
			// Don't quit when all windows are closed (we have a system tray)
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	mainWindow := app.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:  "Voicepad",
		Width:  420,
		Height: 600,
		URL:    "/",
		Mac: application.MacWindow{
			TitleBar:                application.MacTitleBarHiddenInsetUnified,
			InvisibleTitleBarHeight: 38,
		},
	})

	// Intercept window close: hide instead of destroy so tray can reopen
	mainWindow.RegisterHook(events.Common.WindowClosing, func(e *application.WindowEvent) {
		e.Cancel()
		mainWindow.Hide()
	})

	appService.Init(app, mainWindow)

	systemTray := app.SystemTray.New()

	trayMenu := app.NewMenu()
	trayMenu.Add("Show Voicepad").OnClick(func(ctx *application.Context) {
		appService.ShowWindow()
	})
	trayMenu.Add("Toggle Recording").
		SetAccelerator("CmdOrCtrl+Shift+D").
		OnClick(func(ctx *application.Context) {
			if err := appService.Toggle(); err != nil {
				slog.Error("toggle recording", "error", err)
			}
		})
	trayMenu.AddSeparator()
	trayMenu.Add("Quit").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(ctx *application.Context) {
			appService.Shutdown()
			app.Quit()
		})
	systemTray.SetMenu(trayMenu)

	if err := app.Run(); err != nil {
		slog.Error("run app", "error", err)
	}
}
