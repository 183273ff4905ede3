package main

import (
	"os"

	"trackmesh/pkg/logger"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trackmesh",
	Short: "Peer-to-peer track distribution node",
	Long:  `A node in a mesh of equal peers that advertise and exchange content-addressed audio tracks without a central server.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Sugar.Error(err)
		os.Exit(1)
	}
}
