package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anoixa/image-relay/utils"
)

// ipCmd 输出 /server-ip 会返回的地址
var ipCmd = &cobra.Command{
	Use:   "ip",
	Short: "Print the address reported by /server-ip",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(utils.FirstNonLoopbackIPv4())
	},
}

func init() {
	rootCmd.AddCommand(ipCmd)
}
