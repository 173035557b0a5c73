package main

import "github.com/Danish-Qaunain/Paralysis-Health-Tracker-IoT-Based-Detection-System/cmd/neurohealth-export/command"

func main() {
	command.Execute()
}
