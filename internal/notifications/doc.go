// Package notifications tells the user when renders and batch runs end.
//
// The desktop implementation shells out to notify-send on Linux and
// osascript on macOS. Other platforms, and disabled notifications, get a
// no-op service, so callers never need to check.
package notifications
