package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// compile dispatches to the language-appropriate pre-spawn check and
// returns the build artifact's run command (the Argv a ChildSpec should
// use), or a *CompileError carrying the compiler's stderr.
//
// CPP is compiled with g++; Java is compiled with javac; Python has no
// build step, so "compilation" is a syntax-only check via
// "python3 -m py_compile", matching the three languages wire.Language
// names.
func compile(ctx context.Context, workDir string, code ParticipantCode) ([]string, error) {
	path := filepath.Join(workDir, code.FileName)
	if err := os.WriteFile(path, []byte(code.SourceCode), 0o644); err != nil {
		return nil, fmt.Errorf("runner: write source %s: %w", path, err)
	}

	switch code.Language {
	case LanguageCPP:
		out := filepath.Join(workDir, "a.out")
		if err := run(ctx, workDir, "g++", "-O2", "-std=c++17", "-o", out, path); err != nil {
			return nil, err
		}
		return []string{out}, nil

	case LanguageJava:
		if err := run(ctx, workDir, "javac", "-d", workDir, path); err != nil {
			return nil, err
		}
		return []string{"java", "-cp", workDir, "Main"}, nil

	case LanguagePython:
		if err := run(ctx, workDir, "python3", "-m", "py_compile", path); err != nil {
			return nil, err
		}
		return []string{"python3", path}, nil

	default:
		return nil, fmt.Errorf("runner: unsupported language %q", code.Language)
	}
}

func run(ctx context.Context, workDir string, argv0 string, args ...string) error {
	cmd := exec.CommandContext(ctx, argv0, args...)
	cmd.Dir = workDir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &CompileError{Stderr: stderr.String()}
	}
	return nil
}
