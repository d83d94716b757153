package main

import (
	"fmt"
	"log"
	"time"

	"github.com/go-gl/gl/v4.2-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/errors"

	"github.com/hexvm/svm/devices/audio"
	"github.com/hexvm/svm/devices/console"
	"github.com/hexvm/svm/devices/controller"
	"github.com/hexvm/svm/devices/display"
	"github.com/hexvm/svm/devices/file"
	"github.com/hexvm/svm/devices/mouse"
	"github.com/hexvm/svm/internal/loader"
	"github.com/hexvm/svm/internal/trace"
	"github.com/hexvm/svm/machine"
)

// Bus assignments, per spec.md/SPEC_FULL.md §4.9.
const (
	busConsole      = 1
	busDisplay      = 2
	busAudio        = 3
	busController0  = 4
	busController1  = 5
	busMouse        = 6
	busFile         = 0xa
	romLoadAddress  = 0x0100
)

// App defines application context.
type App struct {
	config *Config
	window *glfw.Window

	machine    *machine.Machine
	display    *display.Device
	mouse      *mouse.Device
	pad0, pad1 *controller.Device

	trace   *trace.Printer
	symbols *loader.Symbols

	running      bool
	cycleCount   uint64
	runStart     time.Time
	titleUpdated time.Time
	lastRendered time.Time
}

// NewApp creates a new application instance using the given configuration.
func NewApp(config *Config) *App {
	a := &App{config: config}

	a.trace = trace.New(log.Default(), nil)
	a.trace.SetEnabled(config.PrintTrace)
	a.trace.OnBreakpoint = func(uint16) { a.running = false }

	a.machine = machine.New(a.trace.Func())
	a.display = display.New()
	a.mouse = mouse.New(nil)
	a.pad0 = controller.New(0)
	a.pad1 = controller.New(1)

	return a
}

// Run runs the application and does not return until it is finished or
// an error occurred during initialization.
func (a *App) Run() error {
	if err := a.initGL(); err != nil {
		return err
	}
	defer a.dispose()

	log.Println(Version())
	printHelp()

	if err := a.registerDevices(); err != nil {
		return err
	}

	if err := a.loadROM(); err != nil {
		return err
	}

	if !a.config.Debug {
		a.setRunning(true)
	}

	for !a.window.ShouldClose() {
		a.mainLoop()
	}

	return nil
}

func (a *App) registerDevices() error {
	a.mouse.Bind(a.window)

	if err := a.machine.RegisterDevice(busConsole, console.New()); err != nil {
		return err
	}
	if err := a.machine.RegisterDevice(busDisplay, a.display); err != nil {
		return err
	}
	if err := a.machine.RegisterDevice(busAudio, audio.New()); err != nil {
		return err
	}
	if err := a.machine.RegisterDevice(busController0, a.pad0); err != nil {
		return err
	}
	if err := a.machine.RegisterDevice(busController1, a.pad1); err != nil {
		return err
	}
	if err := a.machine.RegisterDevice(busMouse, a.mouse); err != nil {
		return err
	}
	if err := a.machine.RegisterDevice(busFile, file.New(a.config.Disk, a.config.Readonly)); err != nil {
		return err
	}

	return a.machine.Startup()
}

// mainLoop performs all main loop operations.
func (a *App) mainLoop() {
	a.pad0.Update()
	a.pad1.Update()
	a.mouse.Update()

	if a.running {
		halted, err := a.machine.Step()
		a.cycleCount++
		if err != nil {
			log.Println(err)
			a.setRunning(false)
		} else if halted {
			a.setRunning(false)
		}
	}

	if time.Since(a.lastRendered) >= time.Second/60 {
		a.lastRendered = time.Now()
		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		a.display.Draw()
		a.window.SwapBuffers()
	}

	if time.Since(a.titleUpdated) >= time.Second*2 {
		a.titleUpdated = time.Now()
		freq := prettyFrequency(a.frequency())
		a.window.SetTitle(fmt.Sprintf("%s %s - %s", AppName, AppVersion, freq))
	}

	glfw.PollEvents()
}

func (a *App) frequency() float64 {
	if !a.running {
		return 0
	}
	return float64(a.cycleCount) / time.Since(a.runStart).Seconds()
}

func (a *App) setRunning(v bool) {
	a.running = v
	a.runStart = time.Now()
	a.cycleCount = 0
}

// dispose ensures openGL/GLFW and other resources are cleaned up.
func (a *App) dispose() {
	if err := a.machine.Shutdown(); err != nil {
		log.Println(err)
	}

	if a.window != nil {
		a.window.Destroy()
		a.window = nil
	}

	glfw.Terminate()
}

func (a *App) keyCallback(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if action != glfw.Press {
		return
	}

	var err error

	switch key {
	case glfw.KeyEscape:
		a.window.SetShouldClose(true)
	case glfw.KeyF1:
		printHelp()
	case glfw.KeyF2:
		a.config.Debug = !a.config.Debug
	case glfw.KeyF5:
		err = a.loadROM()
	case glfw.KeyQ:
		a.setRunning(!a.running)
	case glfw.KeyE:
		if _, stepErr := a.machine.Step(); stepErr != nil {
			err = stepErr
		}
	case glfw.KeyD:
		a.config.PrintTrace = !a.config.PrintTrace
		a.trace.SetEnabled(a.config.PrintTrace)
	}

	if err != nil {
		log.Println(err)
	}
}

// initGL initializes GLFW and OpenGL.
func (a *App) initGL() error {
	if err := glfw.Init(); err != nil {
		return errors.Wrapf(err, "glfw.Init failed")
	}

	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.Visible, glfw.True)
	glfw.WindowHint(glfw.Focused, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 2)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	var monitor *glfw.Monitor

	width := display.Width * a.config.ScaleFactor
	height := display.Height * a.config.ScaleFactor

	if a.config.Fullscreen {
		monitor = glfw.GetPrimaryMonitor()
		mode := monitor.GetVideoMode()

		width = mode.Width
		height = mode.Height

		glfw.WindowHint(glfw.Decorated, glfw.False)
		glfw.WindowHint(glfw.Maximized, glfw.True)
	} else {
		glfw.WindowHint(glfw.Decorated, glfw.True)
		glfw.WindowHint(glfw.Maximized, glfw.False)
	}

	var err error
	a.window, err = glfw.CreateWindow(width, height, "", monitor, nil)
	if err != nil {
		a.dispose()
		return errors.Wrapf(err, "glfw.CreateWindow failed")
	}

	a.window.MakeContextCurrent()
	a.window.SetKeyCallback(a.keyCallback)

	glfw.SwapInterval(0)

	if err := gl.Init(); err != nil {
		a.dispose()
		return errors.Wrapf(err, "gl.Init failed")
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LESS)
	gl.ClearColor(0, 0, 0, 1.0)
	return nil
}

// loadROM (re)loads the program from disk, resetting the machine and
// its debug-symbol table.
func (a *App) loadROM() error {
	log.Println("loading", a.config.ROM)

	data, err := loader.LoadROM(a.config.ROM)
	if err != nil {
		return err
	}

	syms, err := loader.LoadSymbols(loader.SidecarPath(a.config.ROM))
	if err != nil {
		log.Println(err)
	}
	a.symbols = syms
	a.trace.SetSymbols(syms)

	a.machine.Reset()
	if err := a.machine.LoadROM(romLoadAddress, data); err != nil {
		return err
	}
	a.machine.CPU().PC = romLoadAddress

	a.setRunning(false)
	return nil
}

// printHelp writes a short overview of supported shortcut keys.
func printHelp() {
	log.Println("shortcut keys:\n" +
		" ESC      Exit.\n" +
		" F1       Display this help.\n" +
		" F2       Enable/Disable debug mode.\n" +
		" F5       (re)load the ROM from disk and reset the machine.\n" +
		" Q        Start/Stop execution.\n" +
		" E        Perform a single execution step.\n" +
		" D        Enable/Disable instruction trace output.")
}

// prettyFrequency returns a human-readable version of the given clock
// frequency in hertz.
func prettyFrequency(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2f GHz", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2f MHz", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.2f KHz", v/1e3)
	default:
		return fmt.Sprintf("%.2f Hz", v)
	}
}
