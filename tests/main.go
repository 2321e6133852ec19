// Command tests probes a FRAM behind the USB SPI bridge: it lists serial
// ports, reads the status register and then live-dumps the shadow mirror.
package main

import (
	"fmt"
	"os"
	"time"

	"go.bug.st/serial/enumerator"

	"pinshadow/boards"
	"pinshadow/fram"
	_ "pinshadow/fram/bridge"
	"pinshadow/util/env"
)

func listPorts() {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		fmt.Printf("enumerate: %v\n", err)
		return
	}
	for _, port := range ports {
		if !port.IsUSB {
			fmt.Printf("%-20s\n", port.Name)
			continue
		}
		fmt.Printf("%-20s USB %s:%s serial %s\n", port.Name, port.VID, port.PID, port.SerialNumber)
	}
}

func dumpLine(a uint16, row []byte, prev []byte) string {
	const hextable = "0123456789abcdef"
	line := make([]byte, 0, 16*(3+4+5))
	dimmed := true
	line = append(line, "\033[2m"...)
	for i, b := range row {
		changed := prev != nil && prev[i] != b
		if changed && dimmed {
			line = append(line, "\033[22m"...)
			dimmed = false
		} else if !changed && !dimmed {
			line = append(line, "\033[2m"...)
			dimmed = true
		}
		line = append(line, ' ', hextable[b>>4], hextable[b&15])
	}
	return fmt.Sprintf("\033[0m%04x:%s\033[0m", a, line)
}

func main() {
	initConsole()
	listPorts()

	family, ok := boards.ByName(env.GetOrDefault("PINSHADOW_FAMILY", "wpc"))
	if !ok {
		fmt.Println("unknown board family")
		os.Exit(1)
	}

	t, err := fram.Open("bridge", env.GetOrDefault("PINSHADOW_FRAM_PORT", ""))
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	dev := fram.NewDevice(t, family.Layout)
	defer dev.Close()

	status, err := dev.ReadStatus()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	fmt.Printf("status %#02x: WEL=%v BP=%d WPEN=%v\n",
		status,
		status&fram.StatusWEL != 0,
		(status>>2)&3,
		status&fram.StatusWPEN != 0,
	)

	rows := min(env.IntOrDefault("PINSHADOW_DUMP_ROWS", 0x2A), family.Layout.ShadowLength/16)
	var prev []byte
	fmt.Printf("\u001B[2J")
	for {
		tStart := time.Now()
		buf, err := dev.Read(family.Layout.ShadowBase, rows*16)
		delta := time.Since(tStart).Microseconds()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		fmt.Printf("\033[H\033[0m\033[2K%8dus | ####: -----------------------------------------------\n", delta)
		for n := 0; n < rows; n++ {
			var p []byte
			if prev != nil {
				p = prev[n*16 : n*16+16]
			}
			fmt.Printf("%8dus | %s\n", delta, dumpLine(family.Layout.ShadowBase+uint16(n*16), buf[n*16:n*16+16], p))
		}
		prev = buf

		time.Sleep(100 * time.Millisecond)
	}
}
