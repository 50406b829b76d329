package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/gopacket/pcap"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List capture devices available to the local pcap driver",
	Args:  cobra.NoArgs,
	RunE:  runDevices,
}

func runDevices(cmd *cobra.Command, args []string) error {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(os.Stdout, "No capture devices found. On Linux this usually means missing CAP_NET_RAW/CAP_NET_ADMIN.")
		return nil
	}

	for _, d := range devices {
		addrs := make([]string, 0, len(d.Addresses))
		for _, a := range d.Addresses {
			if a.IP != nil {
				addrs = append(addrs, a.IP.String())
			}
		}
		loopback := ""
		if d.Flags&pcap.PCAP_IF_LOOPBACK != 0 {
			loopback = " (loopback)"
		}
		desc := d.Description
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(os.Stdout, "%s%s\n  description: %s\n  addresses:   %s\n\n",
			d.Name, loopback, desc, strings.Join(addrs, ", "))
	}
	return nil
}
