// Command abs is the CLI front end from spec section 6: subcommands
// init, build, run, debug, clean and kill, driving the Build Orchestrator
// against the project manifest in the current (or given) directory.
//
// Flag parsing uses github.com/integrii/flaggy's subcommand registration
// in the style of jesseduffield-lazydocker's main.go (distri's own
// cmd/distri/distri.go uses stdlib flag); -debug error reporting borrows
// go-errors/errors for a captured stack trace instead of a bare message.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	goerrors "github.com/go-errors/errors"
	"github.com/fatih/color"
	"github.com/integrii/flaggy"
	"github.com/sirupsen/logrus"

	"github.com/abs-build/abs/internal/abserr"
	"github.com/abs-build/abs/internal/config"
	"github.com/abs-build/abs/internal/manifest"
	"github.com/abs-build/abs/internal/orchestrator"
	"github.com/abs-build/abs/internal/platform"
	"github.com/abs-build/abs/internal/procmanager"
	"github.com/abs-build/abs/internal/toolchain"
)

var log = logrus.New()

func main() {
	os.Exit(run())
}

func run() int {
	flaggy.SetName("abs")
	flaggy.SetDescription("ABS builds C++ projects with the MSVC toolchain.")

	var debug bool
	flaggy.Bool(&debug, "", "debug", "print a full stack trace on failure")

	projectDir := "."
	mode := "debug"
	cleanMode := "" // empty: clean removes every mode's artifacts
	target := "host"

	initCmd := flaggy.NewSubcommand("init")
	initCmd.Description = "scaffold a new project in the given directory"
	initCmd.AddPositionalValue(&projectDir, "dir", 1, false, "project directory (default: current directory)")

	buildCmd := flaggy.NewSubcommand("build")
	buildCmd.Description = "build the project"
	buildCmd.String(&mode, "m", "mode", "compile_mode: debug or release")
	buildCmd.String(&target, "t", "target", "target: host, all, or a platform token")
	buildCmd.AddPositionalValue(&projectDir, "dir", 1, false, "project directory (default: current directory)")

	runCmd := flaggy.NewSubcommand("run")
	runCmd.Description = "build, then run the project's binary"
	runCmd.String(&mode, "m", "mode", "compile_mode: debug or release")
	runCmd.String(&target, "t", "target", "target: host or a platform token")
	runCmd.AddPositionalValue(&projectDir, "dir", 1, false, "project directory (default: current directory)")

	debugCmd := flaggy.NewSubcommand("debug")
	debugCmd.Description = "build, then launch the project's binary under the debugger"
	debugCmd.String(&mode, "m", "mode", "compile_mode: debug or release")
	debugCmd.String(&target, "t", "target", "target: host or a platform token")
	debugCmd.AddPositionalValue(&projectDir, "dir", 1, false, "project directory (default: current directory)")

	cleanCmd := flaggy.NewSubcommand("clean")
	cleanCmd.Description = "remove this project's build artifacts"
	cleanCmd.String(&cleanMode, "m", "mode", "compile_mode: debug or release (default: both)")
	cleanCmd.AddPositionalValue(&projectDir, "dir", 1, false, "project directory (default: current directory)")

	killCmd := flaggy.NewSubcommand("kill")
	killCmd.Description = "terminate a previously launched instance of this project's binary"
	killCmd.String(&mode, "m", "mode", "compile_mode: debug or release")
	killCmd.String(&target, "t", "target", "target: host or a platform token")
	killCmd.AddPositionalValue(&projectDir, "dir", 1, false, "project directory (default: current directory)")

	flaggy.AttachSubcommand(initCmd, 1)
	flaggy.AttachSubcommand(buildCmd, 1)
	flaggy.AttachSubcommand(runCmd, 1)
	flaggy.AttachSubcommand(debugCmd, 1)
	flaggy.AttachSubcommand(cleanCmd, 1)
	flaggy.AttachSubcommand(killCmd, 1)

	flaggy.Parse()

	var err error
	switch {
	case initCmd.Used:
		err = runInit(projectDir)
	case buildCmd.Used:
		err = runBuild(projectDir, mode, target)
	case runCmd.Used:
		err = runRun(projectDir, mode, target)
	case debugCmd.Used:
		err = runDebug(projectDir, mode, target)
	case cleanCmd.Used:
		err = runClean(projectDir, cleanMode)
	case killCmd.Used:
		err = runKill(projectDir, mode, target)
	default:
		flaggy.ShowHelp("")
		return 1
	}

	if err != nil {
		report(err, debug)
		return 1
	}
	return 0
}

func report(err error, debug bool) {
	if debug {
		fmt.Fprintln(os.Stderr, goerrors.Wrap(err, 1).ErrorStack())
		return
	}
	if ae, ok := abserr.As(err); ok {
		color.Red("%s: %s\n", ae.Kind, ae.Error())
		return
	}
	color.Red("%v\n", err)
}

func loadConfigAndBuild(projectDir, mode, targetFlag string) ([]*orchestrator.Result, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	manifestPath := filepath.Join(projectDir, "project.json")
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	opts := orchestrator.Options{Mode: mode, Config: cfg, Out: os.Stdout}

	if targetFlag == "all" {
		log.WithFields(logrus.Fields{"project": m.Name, "mode": mode, "target": "all"}).Info("building")
		return orchestrator.BuildAll(context.Background(), manifestPath, m, opts)
	}

	target, err := resolveTarget(targetFlag, m)
	if err != nil {
		return nil, err
	}
	opts.Target = target
	log.WithFields(logrus.Fields{"project": m.Name, "mode": mode, "target": target}).Info("building")
	res, err := orchestrator.Build(context.Background(), manifestPath, opts)
	if err != nil {
		return nil, err
	}
	return []*orchestrator.Result{res}, nil
}

func resolveTarget(targetFlag string, m *manifest.Manifest) (platform.Platform, error) {
	if targetFlag == "" || targetFlag == "host" {
		host := platform.Host()
		for _, t := range m.SupportedTargets {
			if t == host {
				return host, nil
			}
		}
		return "", fmt.Errorf("host platform %q is not among %s's supported_targets", host, m.Name)
	}
	return platform.Parse(targetFlag)
}

// requireRunnable loads projectDir's manifest and enforces spec section
// 4.5's run/debug gating: the pseudo-target "all" is only valid for
// build, a library output_type can never be launched as a process, and
// the resolved target must actually be executable on this host.
func requireRunnable(projectDir, targetFlag string) (*manifest.Manifest, platform.Platform, error) {
	if targetFlag == "all" {
		return nil, "", fmt.Errorf(`target "all" is not valid for run/debug; pick a single target`)
	}

	manifestPath := filepath.Join(projectDir, "project.json")
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, "", err
	}
	if m.OutputType.IsLibrary() {
		return nil, "", fmt.Errorf("%s builds a %s, which run/debug cannot launch as a process", m.Name, m.OutputType)
	}

	t, err := resolveTarget(targetFlag, m)
	if err != nil {
		return nil, "", err
	}
	if host := platform.Host(); !host.IsBackwardsCompatibleWith(t) {
		return nil, "", fmt.Errorf("host %s cannot run a %s binary", host, t)
	}
	return m, t, nil
}

func runInit(projectDir string) error {
	if err := os.MkdirAll(filepath.Join(projectDir, "src"), 0755); err != nil {
		return err
	}
	name := filepath.Base(absPathOrSelf(projectDir))
	manifestJSON := fmt.Sprintf(`{
  "name": %q,
  "cxx_options": { "rtti": false, "async_await": true, "standard": "c++17" },
  "output_type": "console_app",
  "link_libraries": [],
  "supported_targets": ["win64"],
  "dependencies": []
}
`, name)
	manifestPath := filepath.Join(projectDir, "project.json")
	if _, err := os.Stat(manifestPath); err == nil {
		return fmt.Errorf("%s already exists", manifestPath)
	}
	if err := os.WriteFile(manifestPath, []byte(manifestJSON), 0644); err != nil {
		return err
	}
	mainCpp := "#include <cstdio>\n\nint main() {\n  std::printf(\"hello\\n\");\n  return 0;\n}\n"
	return os.WriteFile(filepath.Join(projectDir, "src", "main.cpp"), []byte(mainCpp), 0644)
}

func absPathOrSelf(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

func runBuild(projectDir, mode, target string) error {
	results, err := loadConfigAndBuild(projectDir, mode, target)
	if err != nil {
		return err
	}
	for _, res := range results {
		color.Green("built %s (%s/%s): %s\n", res.Project, mode, res.Target, res.BinaryPath)
	}
	return nil
}

func runRun(projectDir, mode, target string) error {
	_, t, err := requireRunnable(projectDir, target)
	if err != nil {
		return err
	}

	results, err := loadConfigAndBuild(projectDir, mode, string(t))
	if err != nil {
		return err
	}
	for _, res := range results {
		cmd := exec.Command(res.BinaryPath)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Stdin = os.Stdin
		if err := cmd.Start(); err != nil {
			return abserr.New(abserr.IoError, res.BinaryPath, err)
		}
		if err := procmanager.RecordLaunch(res.BinaryPath, cmd); err != nil {
			log.Warn(err)
		}
		err := cmd.Wait()
		procmanager.Forget(res.BinaryPath)
		if err != nil {
			return err
		}
	}
	return nil
}

func runDebug(projectDir, mode, target string) error {
	_, t, err := requireRunnable(projectDir, target)
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	manifestPath := filepath.Join(projectDir, "project.json")
	opts := orchestrator.Options{Mode: mode, Target: t, Config: cfg, Out: os.Stdout}
	res, err := orchestrator.Build(context.Background(), manifestPath, opts)
	if err != nil {
		return err
	}
	tc, err := toolchain.Find(t, false, cfg.ToolchainOptions())
	if err != nil {
		return err
	}
	cmd := exec.Command(tc.DebuggerPath, "/debugexe", res.BinaryPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Start(); err != nil {
		return abserr.New(abserr.IoError, res.BinaryPath, err)
	}
	if err := procmanager.RecordLaunch(res.BinaryPath, cmd); err != nil {
		log.Warn(err)
	}
	return cmd.Wait()
}

func runClean(projectDir, mode string) error {
	manifestPath := filepath.Join(projectDir, "project.json")
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	if mode != "" {
		return os.RemoveAll(filepath.Join(projectDir, "abs", mode, m.Name))
	}
	return os.RemoveAll(filepath.Join(projectDir, "abs"))
}

func runKill(projectDir, mode, target string) error {
	manifestPath := filepath.Join(projectDir, "project.json")
	m, err := manifest.Load(manifestPath)
	if err != nil {
		return err
	}
	t, err := resolveTarget(target, m)
	if err != nil {
		return err
	}
	env := filepath.Join(projectDir, "abs", mode, m.Name, string(t), m.Name+binaryExt(m.OutputType))
	return procmanager.KillBeforeLink(env)
}

func binaryExt(t manifest.OutputType) string {
	switch t {
	case manifest.DynamicLibrary:
		return ".dll"
	case manifest.StaticLibrary:
		return ".lib"
	default:
		return ".exe"
	}
}

