package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/espcore/internal/config"
	"github.com/muurk/espcore/internal/elfcore"
	"github.com/muurk/espcore/internal/gdb"
	"github.com/muurk/espcore/internal/gdb/scripts"
	"github.com/muurk/espcore/internal/loader"
	"github.com/muurk/espcore/internal/logging"
	"github.com/muurk/espcore/internal/memmap"
	"github.com/muurk/espcore/internal/notes"
	"github.com/muurk/espcore/internal/report"
	"github.com/muurk/espcore/internal/target"
	"github.com/muurk/espcore/internal/ui"
)

// Environment variables honored for serial settings, matching the
// esptool conventions.
const (
	envChip = "ESPTOOL_CHIP"
	envPort = "ESPTOOL_PORT"
	envBaud = "ESPTOOL_BAUD"
)

// defaultFlashOffset is the conventional coredump partition offset.
const defaultFlashOffset = 0x110000

// Command flags
var (
	chipName    string
	serialPort  string
	serialBaud  int
	esptoolPath string
	gdbPath     string
	gdbTimeout  time.Duration
	verbose     bool

	coreFile    string
	coreFormat  string
	flashOffset uint32
	saveCore    string
	romELF      string
	printMem    bool
	btLimit     int

	configInit bool
)

func init() {
	// Common flags for all commands (persistent on root)
	rootCmd.PersistentFlags().StringVar(&chipName, "chip", target.Auto, "Target chip (auto, esp32, esp32s2, esp32s3, esp32c3)")
	rootCmd.PersistentFlags().StringVar(&serialPort, "port", "", "Serial port for flash reads and chip detection")
	rootCmd.PersistentFlags().IntVar(&serialBaud, "baud", 0, "Serial baud rate")
	rootCmd.PersistentFlags().StringVar(&esptoolPath, "esptool", "", "Path to the esptool binary")
	rootCmd.PersistentFlags().StringVar(&gdbPath, "gdb", "", "Path to the GDB binary (default: toolchain GDB for the target)")
	rootCmd.PersistentFlags().DurationVar(&gdbTimeout, "gdb-timeout", 0, "GDB batch operation timeout (e.g. 10s, 1m)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show raw GDB output")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(dbgCmd)
	rootCmd.AddCommand(configCmd)
}

// infoCmd implements the 'info' command
var infoCmd = &cobra.Command{
	Use:   "info PROGRAM_ELF",
	Short: "Print a crash report from a core dump",
	Long: `Analyze a core dump against its program ELF and print the crash
report: crashed task, registers, per-task backtraces, and the
reconciled memory map.

The core dump is read from --core, or from the device flash when
--core is omitted. Base64 console captures and raw flash images are
unwrapped and checksum-verified before analysis.`,
	Example: `  # ELF core dump
  espcore info --core core.elf app.elf

  # Base64 capture, keeping the converted ELF
  espcore info --core console.b64 --core-format b64 --save-core core.elf app.elf

  # Read from flash and include region hex dumps
  espcore info --port /dev/ttyUSB0 --print-mem app.elf`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().StringVar(&coreFile, "core", "", "Core dump file (reads device flash when omitted)")
	infoCmd.Flags().StringVar(&coreFormat, "core-format", "elf", "Core dump encoding: elf, raw or b64")
	infoCmd.Flags().Uint32Var(&flashOffset, "off", defaultFlashOffset, "Flash offset of the coredump partition")
	infoCmd.Flags().StringVar(&saveCore, "save-core", "", "Save the core dump as an ELF file at this path")
	infoCmd.Flags().StringVar(&romELF, "rom-elf", "", "ROM ELF with symbols for ROM frames (default: <target>_rom.elf)")
	infoCmd.Flags().BoolVar(&printMem, "print-mem", false, "Include hex dumps of the captured memory regions")
	infoCmd.Flags().IntVar(&btLimit, "bt-limit", 0, "Cap backtrace depth (0 = unlimited)")
}

// dbgCmd implements the 'dbg' command
var dbgCmd = &cobra.Command{
	Use:   "dbg PROGRAM_ELF",
	Short: "Open an interactive GDB session on a core dump",
	Long: `Load the core dump and program ELF into the target's toolchain GDB
and hand over the terminal for manual inspection. ROM symbols are
loaded first when a ROM ELF is available.`,
	Example: `  espcore dbg --core core.elf app.elf`,
	Args: cobra.ExactArgs(1),
	RunE: runDbg,
}

func init() {
	dbgCmd.Flags().StringVar(&coreFile, "core", "", "Core dump file (reads device flash when omitted)")
	dbgCmd.Flags().StringVar(&coreFormat, "core-format", "elf", "Core dump encoding: elf, raw or b64")
	dbgCmd.Flags().Uint32Var(&flashOffset, "off", defaultFlashOffset, "Flash offset of the coredump partition")
	dbgCmd.Flags().StringVar(&saveCore, "save-core", "", "Save the core dump as an ELF file at this path")
	dbgCmd.Flags().StringVar(&romELF, "rom-elf", "", "ROM ELF with symbols for ROM frames (default: <target>_rom.elf)")
}

// configCmd implements the 'config' command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the configuration file",
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "Write a config file with the built-in defaults")
}

// session holds the values and collaborators shared by info and dbg.
type session struct {
	settings config.Settings
	program  string

	core     *loader.CoreFile
	exe      *elfcore.File
	coreELF  *elfcore.File
	snapshot notes.RegisterSnapshot
	tasks    []notes.TaskStatus
	target   string
	executor *gdb.Executor
}

// effectiveString resolves flag > environment > config precedence.
func effectiveString(flagValue, envVar, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return configValue
}

func effectivePort(s config.Settings) string {
	return effectiveString(serialPort, envPort, s.Port)
}

func effectiveBaud(s config.Settings) int {
	if serialBaud != 0 {
		return serialBaud
	}
	if v := os.Getenv(envBaud); v != "" {
		var baud int
		if _, err := fmt.Sscanf(v, "%d", &baud); err == nil && baud > 0 {
			return baud
		}
	}
	return s.Baud
}

func effectiveChip() string {
	if chipName != "" && chipName != target.Auto {
		return chipName
	}
	if v := os.Getenv(envChip); v != "" {
		return v
	}
	return target.Auto
}

func effectiveTimeout(s config.Settings) time.Duration {
	if gdbTimeout > 0 {
		return gdbTimeout
	}
	return s.GDBTimeout
}

// prepare runs the shared pipeline: load the core, open both ELFs,
// extract diagnostics, resolve the target and build the GDB executor.
func prepare(ctx context.Context, program string) (*session, error) {
	// A broken ESPCORE_LOG_LEVEL must not block analysis.
	_ = logging.InitializeFromEnv()

	settings, err := config.Load()
	if err != nil {
		return nil, err
	}

	s := &session{settings: settings, program: program}

	esptool := settings.Esptool
	if esptoolPath != "" {
		esptool = esptoolPath
	}

	// Obtain the core dump as an ELF on disk.
	if coreFile != "" {
		s.core, err = loader.Load(coreFile, loader.Format(coreFormat), "")
	} else {
		flash := &loader.FlashLoader{
			Esptool: esptool,
			Port:    effectivePort(settings),
			Baud:    effectiveBaud(settings),
			Offset:  flashOffset,
		}
		s.core, err = flash.Load(ctx, "")
	}
	if err != nil {
		return nil, err
	}

	s.exe, err = elfcore.Open(program)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open program ELF: %w", err)
	}
	s.coreELF, err = elfcore.Open(s.core.Path)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open core ELF: %w", err)
	}
	if err := elfcore.CheckMachine(s.exe, s.coreELF); err != nil {
		s.cleanup()
		return nil, err
	}

	s.snapshot, s.tasks, err = notes.Extract(s.coreELF.Notes)
	if err != nil {
		s.cleanup()
		return nil, err
	}

	// Target resolution: version note from the core, then the flash
	// image header, then live detection.
	var chipVersion *uint16
	if code, ok := notes.ChipVersion(s.coreELF.Notes); ok {
		chipVersion = &code
	} else if s.core.Chip != nil {
		chipVersion = s.core.Chip
	}

	resolver := &target.Resolver{
		Explicit: effectiveChip(),
		Port:     effectivePort(settings),
		Baud:     effectiveBaud(settings),
		Detector: target.NewEsptoolDetector(esptool),
	}
	s.target, err = resolver.Resolve(ctx, chipVersion)
	if err != nil {
		s.cleanup()
		return nil, err
	}

	// GDB binary: flag, then config override, then toolchain default.
	binary := gdbPath
	if binary == "" {
		binary = settings.GDB[s.target]
	}
	if binary == "" {
		binary, err = target.GDBBinary(s.target)
		if err != nil {
			s.cleanup()
			return nil, err
		}
	}

	s.executor = gdb.NewExecutor(gdb.Config{
		GDBPath:        binary,
		Program:        program,
		Core:           s.core.Path,
		SymbolCommands: romSymbolCommands(settings, s.target),
		Timeout:        effectiveTimeout(settings),
	}, logging.GetLogger())

	if err := s.executor.ValidateConfig(ctx); err != nil {
		s.cleanup()
		return nil, err
	}

	return s, nil
}

// romSymbolCommands builds the ROM symbol loading commands when a ROM
// ELF is present. Missing ROM symbols degrade backtraces, they don't
// fail the run.
func romSymbolCommands(settings config.Settings, tgt string) []string {
	path := romELF
	if path == "" {
		path = filepath.Join(settings.RomELFDir, target.DefaultRomELF(tgt))
	}
	if _, err := os.Stat(path); err != nil {
		if romELF != "" {
			logging.Warn("ROM ELF not found, ROM frames will be unresolved")
		}
		return nil
	}
	cmd, err := romSymbolCommand(path)
	if err != nil {
		logging.Warn("unusable ROM ELF, ROM frames will be unresolved",
			zap.String("path", path), zap.Error(err))
		return nil
	}
	return []string{cmd}
}

// romSymbolCommand formats the add-symbol-file command for a ROM ELF.
// GDB needs the code load address alongside the path; it comes from
// the ROM ELF's own .text section.
func romSymbolCommand(path string) (string, error) {
	rom, err := elfcore.Open(path)
	if err != nil {
		return "", err
	}
	for _, sec := range rom.Sections {
		if sec.Name == ".text" {
			return fmt.Sprintf("add-symbol-file %s 0x%x", path, sec.Addr), nil
		}
	}
	return "", fmt.Errorf("%s has no .text section", path)
}

// cleanup removes the temporary core file unless it was saved.
func (s *session) cleanup() {
	if s.core != nil && s.core.Temp {
		os.Remove(s.core.Path)
	}
	logging.Sync()
}

// save copies the core ELF to the --save-core path, confirming before
// replacing an existing file.
func (s *session) save(path string) error {
	if _, err := os.Stat(path); err == nil {
		if !ui.ConfirmOverwrite(path) {
			return nil
		}
	}

	src, err := os.Open(s.core.Path)
	if err != nil {
		return fmt.Errorf("failed to open core for saving: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to save core to %s: %w", path, err)
	}
	return nil
}

func coreSourceLabel() string {
	if coreFile != "" {
		return fmt.Sprintf("%s (%s)", coreFile, coreFormat)
	}
	return fmt.Sprintf("device flash @ 0x%x", flashOffset)
}

func runInfo(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	ui.PrintHeader(
		"Core Dump Analysis",
		"espcore info",
		[]ui.Param{
			{Key: "Program", Value: args[0]},
			{Key: "Core", Value: coreSourceLabel()},
			{Key: "Chip", Value: chipName},
		},
	)

	s, err := prepare(ctx, args[0])
	if err != nil {
		ui.PrintFailure("Core dump analysis", err, troubleshootingTips())
		return err
	}
	defer s.cleanup()

	var overview *scripts.Result
	err = ui.Spin("Analyzing core dump with "+s.target+" GDB", func() error {
		var execErr error
		overview, execErr = s.executor.Execute(ctx, scripts.NewOverviewScript(btLimit))
		return execErr
	})
	if err != nil {
		ui.PrintFailure("Core dump analysis", err, troubleshootingTips())
		return err
	}

	regions, err := memmap.Reconcile(s.exe.Sections, s.coreELF.Segments)
	if err != nil {
		ui.PrintFailure("Core dump analysis", err, nil)
		return err
	}

	var memory []scripts.MemoryContents
	if printMem {
		params := make([]scripts.RegionParam, 0, len(regions))
		for _, r := range regions {
			params = append(params, scripts.RegionParam{
				Name:  r.Name,
				Addr:  r.Addr,
				Words: scripts.WordsForSize(r.Size),
			})
		}
		dump, dumpErr := s.executor.Execute(ctx, scripts.NewDumpMemoryScript(params))
		if dumpErr != nil {
			ui.PrintFailure("Memory dump", dumpErr, troubleshootingTips())
			return dumpErr
		}
		memory = dump.Memory
	}

	if err := report.Compose(os.Stdout, report.Params{
		Target:   s.target,
		Xtensa:   target.IsXtensa(s.target),
		Snapshot: s.snapshot,
		Tasks:    s.tasks,
		Overview: overview,
		Regions:  regions,
		Memory:   memory,
	}); err != nil {
		return err
	}

	if verbose {
		fmt.Println()
		fmt.Println(ui.NewGDBOutput(overview.RawOutput).Render())
	}

	if saveCore != "" {
		if err := s.save(saveCore); err != nil {
			ui.PrintFailure("Save core", err, nil)
			return err
		}
	}

	return nil
}

func runDbg(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	s, err := prepare(ctx, args[0])
	if err != nil {
		ui.PrintFailure("GDB session setup", err, troubleshootingTips())
		return err
	}
	defer s.cleanup()

	if saveCore != "" {
		if err := s.save(saveCore); err != nil {
			ui.PrintFailure("Save core", err, nil)
			return err
		}
	}

	return s.executor.Interactive(ctx)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}

	if configInit {
		if _, err := os.Stat(path); err == nil && !ui.ConfirmOverwrite(path) {
			return nil
		}
		if err := config.Save(config.Default()); err != nil {
			return err
		}
		fmt.Printf("Wrote defaults to %s\n", path)
		return nil
	}

	settings, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("Config file: %s\n\n", path)
	fmt.Printf("  port:        %s\n", settings.Port)
	fmt.Printf("  baud:        %d\n", settings.Baud)
	fmt.Printf("  esptool:     %s\n", settings.Esptool)
	fmt.Printf("  gdb_timeout: %s\n", settings.GDBTimeout)
	if settings.RomELFDir != "" {
		fmt.Printf("  rom_elf_dir: %s\n", settings.RomELFDir)
	}
	for tgt, bin := range settings.GDB {
		fmt.Printf("  gdb[%s]: %s\n", tgt, bin)
	}
	return nil
}

func troubleshootingTips() []string {
	return []string{
		"Check the program ELF matches the firmware that crashed",
		"Verify the toolchain GDB for the target is installed (--gdb to override)",
		"For flash reads, confirm the device is connected and --off is the coredump partition offset",
		"Run with ESPCORE_LOG_LEVEL=debug for detailed logs",
	}
}
