/* Latitude / Longitude to UTM conversion */
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/kf7qex/gotnc/internal/coords"
)

func main() {
	if len(os.Args) != 3 {
		usage()
		return
	}

	var lat, _ = strconv.ParseFloat(os.Args[1], 64)
	var lon, _ = strconv.ParseFloat(os.Args[2], 64)

	// UTM

	var utm, utmErr = coords.ToUTM(lat, lon)
	if utmErr == nil {
		fmt.Printf("UTM %s\n", utm)
	} else {
		fmt.Printf("Conversion to UTM failed:\n%s\n\n", utmErr)

		// Others could still succeed, keep going.
	}

	// Practice run with MGRS to see if it will succeed

	var _, mgrsErr = coords.ToMGRS(lat, lon, 5)
	if mgrsErr == nil {
		// OK, hope changing precision doesn't make a difference.

		fmt.Printf("MGRS =")
		for precision := 1; precision <= 5; precision++ {
			mgrs, _ := coords.ToMGRS(lat, lon, precision)
			fmt.Printf("  %s", mgrs)
		}
		fmt.Printf("\n")
	} else {
		fmt.Printf("Conversion to MGRS failed:\n%s\n", mgrsErr)
	}
}

func usage() {
	fmt.Printf("Latitude / Longitude to UTM conversion\n")
	fmt.Printf("\n")
	fmt.Printf("Usage:\n")
	fmt.Printf("\tll2utm  latitude  longitude\n")
	fmt.Printf("\n")
	fmt.Printf("where,\n")
	fmt.Printf("\tLatitude and longitude are in decimal degrees.\n")
	fmt.Printf("\t   Use negative for south or west.\n")
	fmt.Printf("\n")
	fmt.Printf("Example:\n")
	fmt.Printf("\tll2utm 42.662139 -71.365553\n")
}
