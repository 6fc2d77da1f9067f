//go:build windows

package main

import (
	"log"

	"golang.org/x/sys/windows"
)

// enableDPIAwareness makes screen and pointer coordinates physical pixels,
// so a region typed from the position display matches what gets captured.
func enableDPIAwareness() {
	const processPerMonitorDPIAware = 2
	setProcessDpiAwareness := windows.NewLazySystemDLL("Shcore.dll").NewProc("SetProcessDpiAwareness")
	if err := setProcessDpiAwareness.Find(); err == nil {
		ret, _, _ := setProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware))
		if ret == 0 {
			log.Printf("DPI: per-monitor DPI awareness enabled")
		} else {
			log.Printf("DPI: SetProcessDpiAwareness failed, error code: %d", ret)
		}
		return
	}

	setProcessDPIAware := windows.NewLazySystemDLL("user32.dll").NewProc("SetProcessDPIAware")
	if err := setProcessDPIAware.Find(); err != nil {
		log.Printf("DPI: no DPI awareness API available")
		return
	}
	if ret, _, _ := setProcessDPIAware.Call(); ret != 0 {
		log.Printf("DPI: system DPI awareness enabled (fallback)")
	} else {
		log.Printf("DPI: SetProcessDPIAware failed")
	}
}
