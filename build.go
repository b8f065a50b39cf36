//go:build ignore

// build.go - navpulse build system
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: all, navd, navsync, test, clean, release

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const (
	module     = "navpulse"
	versionPkg = module + "/pkg/contracts"
	distDir    = "dist"
)

var binaries = []string{"navd", "navsync"}

var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// BuildContext holds configuration for the build process
type BuildContext struct {
	Verbose bool
	Version string
	Commit  string
	GOOS    string
	GOARCH  string
}

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	version := flag.String("version", "", "Version to stamp (defaults to git describe)")
	goos := flag.String("os", "", "Target GOOS (cross builds need a cgo toolchain)")
	goarch := flag.String("arch", "", "Target GOARCH")
	flag.Parse()

	if runtime.GOOS == "windows" {
		colorReset, colorRed, colorGreen, colorYellow, colorCyan = "", "", "", "", ""
	}

	ctx := &BuildContext{
		Verbose: *verbose,
		Version: *version,
		Commit:  gitOutput("rev-parse", "--short", "HEAD"),
		GOOS:    *goos,
		GOARCH:  *goarch,
	}
	if ctx.Version == "" {
		ctx.Version = strings.TrimPrefix(gitOutput("describe", "--tags", "--always", "--dirty"), "v")
	}
	if ctx.Version == "" {
		ctx.Version = "0.1.0-dev"
	}

	startTime := time.Now()

	switch *target {
	case "all":
		buildAll(ctx)
	case "navd", "navsync":
		buildBinary(*target, ctx)
	case "test":
		runTests(ctx.Verbose)
	case "clean":
		clean()
	case "release":
		buildRelease(ctx)
	default:
		showHelp()
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(startTime).Round(time.Millisecond)))
}

func printInfo(msg string)    { fmt.Printf("%s[INFO]%s %s\n", colorCyan, colorReset, msg) }
func printSuccess(msg string) { fmt.Printf("%s[OK]%s %s\n", colorGreen, colorReset, msg) }
func printWarning(msg string) { fmt.Printf("%s[WARN]%s %s\n", colorYellow, colorReset, msg) }
func printError(msg string)   { fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg) }

func gitOutput(args ...string) string {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func buildAll(ctx *BuildContext) {
	for _, name := range binaries {
		buildBinary(name, ctx)
	}
}

func buildBinary(name string, ctx *BuildContext) {
	printInfo(fmt.Sprintf("Building %s %s...", name, ctx.Version))

	outputPath := filepath.Join(distDir, name)
	goos := ctx.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "windows" {
		outputPath += ".exe"
	}

	ldflags := fmt.Sprintf("-s -w -X %[1]s.Version=%[2]s -X %[1]s.BuildTime=%[3]s -X %[1]s.GitCommit=%[4]s",
		versionPkg, ctx.Version, time.Now().UTC().Format(time.RFC3339), ctx.Commit)

	args := []string{"build"}
	if ctx.Verbose {
		args = append(args, "-v")
	}
	args = append(args, "-trimpath", "-ldflags", ldflags, "-o", outputPath, "./cmd/"+name)

	cmd := exec.Command("go", args...)
	// duckdb links libduckdb through cgo
	cmd.Env = append(os.Environ(), "CGO_ENABLED=1")
	if ctx.GOOS != "" {
		cmd.Env = append(cmd.Env, "GOOS="+ctx.GOOS)
	}
	if ctx.GOARCH != "" {
		cmd.Env = append(cmd.Env, "GOARCH="+ctx.GOARCH)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if ctx.Verbose {
		fmt.Printf("Running: go %s\n", strings.Join(args, " "))
	}

	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Failed to build %s: %v", name, err))
		os.Exit(1)
	}

	if info, err := os.Stat(outputPath); err == nil {
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", outputPath, float64(info.Size())/1024/1024))
	}
}

func runTests(verbose bool) {
	printInfo("Running Go tests...")
	args := []string{"test", "-race"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "./...")

	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Go tests failed: %v", err))
		os.Exit(1)
	}
	printSuccess("All tests passed")
}

func clean() {
	printInfo("Cleaning build artifacts...")
	if err := os.RemoveAll(distDir); err != nil {
		printError(fmt.Sprintf("Failed to clean %s: %v", distDir, err))
		return
	}
	printSuccess("Build artifacts cleaned")
}

func buildRelease(ctx *BuildContext) {
	printInfo("Building release version...")
	clean()

	if strings.HasSuffix(ctx.Version, "-dirty") {
		printWarning("Working tree has uncommitted changes")
	}

	buildAll(ctx)

	if err := os.MkdirAll(distDir, 0755); err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	content := fmt.Sprintf("navpulse v%s\ncommit: %s\nbuilt: %s\n",
		ctx.Version, ctx.Commit, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(filepath.Join(distDir, "VERSION.txt"), []byte(content), 0644); err != nil {
		printError(fmt.Sprintf("Failed to write VERSION.txt: %v", err))
		os.Exit(1)
	}

	printSuccess("Release build completed")
}

func showHelp() {
	fmt.Println("Usage: go run build.go [-target=TARGET] [-v] [-version=X.Y.Z] [-os=GOOS] [-arch=GOARCH]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all      Build navd and navsync (default)")
	fmt.Println("  navd     Build the HTTP service")
	fmt.Println("  navsync  Build the batch runner")
	fmt.Println("  test     Run go test -race ./...")
	fmt.Println("  clean    Remove dist/")
	fmt.Println("  release  Clean, build all and write dist/VERSION.txt")
}
