package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sun/sunwatch/internal/ephemeris"
)

func main() {
	lat := flag.Float64("lat", 51.4769, "observer latitude, degrees north")
	lon := flag.Float64("lon", -0.0005, "observer longitude, degrees east")
	when := flag.String("t", "", "query time, RFC 3339 (default: now)")
	window := flag.Int("window", ephemeris.DefaultWindow, "search window, hours (even)")
	flag.Parse()

	t := time.Now().UTC()
	if *when != "" {
		parsed, err := time.Parse(time.RFC3339, *when)
		if err != nil {
			fmt.Println("ERROR parsing -t:", err)
			os.Exit(1)
		}
		t = parsed
	}

	calc, err := ephemeris.NewCalculator(*window)
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}

	fmt.Printf("Observer: %.4f°N %.4f°E\n", *lat, *lon)
	fmt.Printf("Query:    %v (window %dh)\n\n", t.Format(time.RFC3339), calc.Window())

	result := calc.Calculate(*lat, *lon, t)

	printEvent := func(name string, has bool, at time.Time, azimuth float64) {
		if !has {
			fmt.Printf("  %-8s none within window\n", name+":")
			return
		}
		rel := "succeeding"
		if at.Before(result.QueryTime) {
			rel = "preceding"
		}
		fmt.Printf("  %-8s %v  az=%6.2f°  (%s, %v away)\n",
			name+":", at.Format(time.RFC3339), azimuth, rel, result.QueryTime.Sub(at).Abs().Round(time.Second))
	}

	fmt.Println("Nearest events:")
	printEvent("sunrise", result.HasRise, result.RiseTime, result.RiseAzimuth)
	printEvent("sunset", result.HasSet, result.SetTime, result.SetAzimuth)

	if result.Visible {
		fmt.Println("\nSun is above the horizon.")
	} else {
		fmt.Println("\nSun is below the horizon.")
	}

	sc, hc := ephemeris.Position(*lat, *lon, t)
	fmt.Printf("\nCurrent position:\n")
	fmt.Printf("  RA  %6.3fh  dec %7.3f°\n", sc.RightAscension, sc.Declination)
	fmt.Printf("  alt %7.3f°  az  %7.3f°\n", hc.Altitude, hc.Azimuth)
}
