package preflight

import (
	"fmt"
	"os/exec"
)

// CheckLanguageServer checks that the configured (or auto-detected)
// language server binary is resolvable on PATH. Non-critical: the
// index/hover/references/rename tools still report a clear error at
// call time if the server is missing, rather than blocking startup.
func (c *Checker) CheckLanguageServer() CheckResult {
	result := CheckResult{
		Name:     "language_server",
		Required: false,
	}

	if len(c.lspCommand) == 0 {
		result.Status = StatusWarn
		result.Message = "no language server command configured (auto-detected at index time)"
		return result
	}

	path, err := exec.LookPath(c.lspCommand[0])
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not found on PATH", c.lspCommand[0])
		result.Details = "index_file/hover/references/rename will fail until it is installed"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s found", c.lspCommand[0])
	result.Details = path
	return result
}

// CheckVCS checks that git is resolvable on PATH. Non-critical: when
// absent, update_incremental cannot probe the repository and returns a
// "Not a git repository" error result without changing the index.
func (c *Checker) CheckVCS() CheckResult {
	result := CheckResult{
		Name:     "vcs",
		Required: false,
	}

	path, err := exec.LookPath("git")
	if err != nil {
		result.Status = StatusWarn
		result.Message = "git not found on PATH"
		result.Details = "update_incremental will report \"Not a git repository\" until it is installed"
		return result
	}

	result.Status = StatusPass
	result.Message = "git found"
	result.Details = path
	return result
}
