//go:build darwin

package access

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa -framework ApplicationServices
// #import <Cocoa/Cocoa.h>
// #import <ApplicationServices/ApplicationServices.h>
// #include <stdlib.h>
// #include <string.h>
//
// static int popstash_ax_trusted(int prompt) {
//     @autoreleasepool {
//         NSDictionary *opts = @{(__bridge id)kAXTrustedCheckOptionPrompt: prompt ? @YES : @NO};
//         return AXIsProcessTrustedWithOptions((__bridge CFDictionaryRef)opts) ? 1 : 0;
//     }
// }
//
// static char *popstash_dup(NSString *s) {
//     if (s == nil) return NULL;
//     const char *u = [s UTF8String];
//     return u ? strdup(u) : NULL;
// }
//
// static char *popstash_selected_text(void) {
//     char *out = NULL;
//     @autoreleasepool {
//         AXUIElementRef sys = AXUIElementCreateSystemWide();
//         CFTypeRef focused = NULL;
//         if (AXUIElementCopyAttributeValue(sys, kAXFocusedUIElementAttribute, &focused) == kAXErrorSuccess && focused) {
//             CFTypeRef value = NULL;
//             if (AXUIElementCopyAttributeValue((AXUIElementRef)focused, kAXSelectedTextAttribute, &value) == kAXErrorSuccess && value) {
//                 if (CFGetTypeID(value) == CFStringGetTypeID()) {
//                     out = popstash_dup((__bridge NSString *)value);
//                 }
//                 CFRelease(value);
//             }
//             CFRelease(focused);
//         }
//         CFRelease(sys);
//     }
//     return out;
// }
//
// static void popstash_send_copy(void) {
//     CGEventSourceRef src = CGEventSourceCreate(kCGEventSourceStateHIDSystemState);
//     CGEventRef down = CGEventCreateKeyboardEvent(src, (CGKeyCode)8, true);
//     CGEventRef up = CGEventCreateKeyboardEvent(src, (CGKeyCode)8, false);
//     CGEventSetFlags(down, kCGEventFlagMaskCommand);
//     CGEventSetFlags(up, kCGEventFlagMaskCommand);
//     CGEventPost(kCGHIDEventTap, down);
//     CGEventPost(kCGHIDEventTap, up);
//     CFRelease(down);
//     CFRelease(up);
//     if (src) CFRelease(src);
// }
//
// static void popstash_frontmost(char **name, char **bundle) {
//     @autoreleasepool {
//         NSRunningApplication *app = [[NSWorkspace sharedWorkspace] frontmostApplication];
//         *name = popstash_dup(app.localizedName);
//         *bundle = popstash_dup(app.bundleIdentifier);
//     }
// }
import "C"

import (
	"context"
	"unsafe"

	"go.klb.dev/popstash/internal/history"
)

type darwinDesktop struct{}

// New returns the macOS desktop backed by the Accessibility API.
func New() Desktop { return darwinDesktop{} }

func (darwinDesktop) Name() string { return "macOS Accessibility" }

func (darwinDesktop) PermissionGranted() bool { return C.popstash_ax_trusted(0) != 0 }

// RequestPermission shows the system prompt that sends the user to the
// Privacy & Security settings.
func (darwinDesktop) RequestPermission() { C.popstash_ax_trusted(1) }

func (darwinDesktop) SelectedText(context.Context) (string, error) {
	return takeString(C.popstash_selected_text()), nil
}

// SendCopy posts Cmd+C (virtual key 8) to the HID event tap.
func (darwinDesktop) SendCopy(context.Context) error {
	C.popstash_send_copy()
	return nil
}

func (darwinDesktop) Frontmost(context.Context) history.Source {
	var name, bundle *C.char
	C.popstash_frontmost(&name, &bundle)
	return history.Source{Name: takeString(name), BundleID: takeString(bundle)}
}

// takeString copies and frees a strdup'd C string.
func takeString(s *C.char) string {
	if s == nil {
		return ""
	}
	defer C.free(unsafe.Pointer(s))
	return C.GoString(s)
}
