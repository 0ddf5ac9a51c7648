package cli

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"convwin/internal/storage/migrations"
)

// 编译时通过 -ldflags 注入
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo 构建信息
type BuildInfo struct {
	Version       string `json:"version"`
	GitCommit     string `json:"git_commit"`
	BuildTime     string `json:"build_time"`
	JournalSchema int    `json:"journal_schema"`
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
}

func currentBuildInfo() BuildInfo {
	return BuildInfo{
		Version:       Version,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		JournalSchema: migrations.Latest(),
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// NewVersionCmd 创建 version 命令
func NewVersionCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := currentBuildInfo()
			out := cmd.OutOrStdout()

			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Fprintf(out, "convwin %s (%s, built %s)\n", info.Version, info.GitCommit, info.BuildTime)
			fmt.Fprintf(out, "journal schema v%d, %s %s\n", info.JournalSchema, info.GoVersion, info.Platform)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}
