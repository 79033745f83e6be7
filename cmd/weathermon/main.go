package main

import "weather-monitor/internal/cli"

func main() {
	cli.Execute()
}
