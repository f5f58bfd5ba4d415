// Copyright 2026 Trashgate Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/trashgate/trashgate/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "trashgate",
	Short: "Trashgate - a delete interception gateway for object storage",
	Long: `Trashgate sits in front of an object storage backend and intercepts
object deletes: before a delete is forwarded, the object is copied into a
per-container trash container so it can be recovered later. Accounts and
containers opt in or out through the X-Undelete-Enabled header.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
