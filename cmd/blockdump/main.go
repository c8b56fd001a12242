// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blockfmt/engine"
	"github.com/blockfmt/engine/walk"
	"github.com/blockfmt/engine/xlog"
)

var (
	followWeak bool
	logger     = xlog.NewHelper(xlog.NewFilter(xlog.NewStdLogger(os.Stderr), xlog.FilterLevel(xlog.LevelInfo)))
)

func prettyPrint(v interface{}) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf, "", "\t"); err != nil {
		return string(buf)
	}
	return pretty.String()
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

func eachFile(root string, fn func(path string)) {
	if !isDirectory(root) {
		fn(root)
		return
	}
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		fn(path)
		return nil
	})
}

type blockSummary struct {
	Index    int      `json:"index"`
	Type     string   `json:"type"`
	IsRoot   bool     `json:"is_root,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func dumpOne(path string, warningsOnly bool) {
	g, warnings, err := blockfmt.OpenFile(path)
	if err != nil {
		logger.Errorf("%s: %v", path, err)
		return
	}

	roots := make(map[int]bool, len(g.Roots()))
	for _, r := range g.Roots() {
		roots[r] = true
	}

	summary := struct {
		Path        string         `json:"path"`
		Version     uint32         `json:"version"`
		UserVersion uint32         `json:"user_version"`
		Roots       int            `json:"roots"`
		Blocks      []blockSummary `json:"blocks,omitempty"`
		Warnings    int            `json:"warnings"`
	}{
		Path:        path,
		Version:     g.Version,
		UserVersion: g.UserVersion,
		Roots:       len(g.Roots()),
		Warnings:    len(warnings.Warnings),
	}

	if !warningsOnly {
		for _, b := range g.Blocks() {
			summary.Blocks = append(summary.Blocks, blockSummary{
				Index:  b.Index,
				Type:   b.TypeName(),
				IsRoot: roots[b.Index],
			})
		}
	}

	fmt.Println(prettyPrint(summary))
	for _, w := range warnings.Warnings {
		logger.Warnf("%s: [%s] block %d: %s", path, w.Kind, w.BlockIndex, w.Message)
	}
}

func walkOne(path string) {
	g, _, err := blockfmt.OpenFile(path)
	if err != nil {
		logger.Errorf("%s: %v", path, err)
		return
	}

	fmt.Printf("%s\n", path)
	for b := range walk.Walk(g, walk.PreOrder, followWeak) {
		fmt.Printf("  #%d %s\n", b.Index, b.TypeName())
	}
}

func newOpenCmd() *cobra.Command {
	var warningsOnly bool
	cmd := &cobra.Command{
		Use:   "open <path>",
		Short: "Open one or more block-structured files and print their graph summary",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eachFile(args[0], func(path string) { dumpOne(path, warningsOnly) })
		},
	}
	cmd.Flags().BoolVar(&warningsOnly, "warnings-only", false, "only print the warning count, not the full block list")
	return cmd
}

func newWalkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "walk <path>",
		Short: "Walk a block graph in pre-order and print each visited block",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			eachFile(args[0], walkOne)
		},
	}
	cmd.Flags().BoolVar(&followWeak, "weak", false, "also follow weak links during the walk")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the registered format list",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("blockdump 0.0.1")
			for _, e := range blockfmt.Registry.Entries() {
				fmt.Printf("  %s (versions %d-%d)\n", e.Name, e.VersionMin, e.VersionMax)
			}
		},
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "blockdump",
		Short: "A schema-driven block graph dumper",
		Long:  "Dumps the block graph of schema-described binary formats (NIF/KFM/CGF and friends)",
	}

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newOpenCmd())
	rootCmd.AddCommand(newWalkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
