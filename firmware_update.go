package smp

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/go-smp/mcumgr/mcuboot"
)

// FirmwareUpdateProgress reports (current, total) progress within the
// current step of UpdateFirmware, when the step has a meaningful measure of
// progress (currently only the upload step).
type FirmwareUpdateProgress struct {
	Current uint64
	Total   uint64
}

// FirmwareUpdateProgressCallback is invoked at each step of UpdateFirmware
// with a human-readable description of what's happening. Progress is nil
// for steps that don't report incremental progress. Returning false cancels
// the update.
type FirmwareUpdateProgressCallback func(message string, progress *FirmwareUpdateProgress) bool

// FirmwareUpdateParams configures UpdateFirmware.
type FirmwareUpdateParams struct {
	// MTU bounds the chunk size used for the upload step.
	MTU int
	// SkipReboot leaves the device running its current image after a
	// successful activation, instead of triggering a reboot into the new one.
	SkipReboot bool
	// ForceConfirm confirms the new image directly instead of leaving it in
	// test-boot (revert-on-next-boot-failure) state.
	ForceConfirm bool
	// UpgradeOnly rejects the upload if the new image's version is not newer
	// than the currently running one.
	UpgradeOnly bool
}

// UpdateFirmware runs the full firmware update sequence against an MCUboot
// device: detect the bootloader, fetch current image state, parse the new
// firmware, compare it against what's already running, upload it, activate
// it, and (unless skipped) reboot. If the device is already running the
// given firmware it returns a "smp.firmware_update.already_installed" error
// without touching the device further.
func (c *Client) UpdateFirmware(ctx context.Context, firmware []byte, params FirmwareUpdateParams, progress FirmwareUpdateProgressCallback) error {
	report := func(msg string, p *FirmwareUpdateProgress) error {
		if progress != nil && !progress(msg, p) {
			return newCodedError("smp.firmware_update.progress_cb_error", "progress callback canceled firmware update")
		}
		return nil
	}

	if err := report("Detecting bootloader ...", nil); err != nil {
		return err
	}

	bootloaderInfo, err := c.BootloaderInfo(ctx, "")
	if err != nil {
		return wrapCodedError("smp.firmware_update.detect_bootloader", "detect bootloader", err)
	}

	if bootloaderInfo.Bootloader != BootloaderNameMCUboot {
		return newCodedError("smp.firmware_update.unknown_bootloader",
			fmt.Sprintf("bootloader %q is not supported", bootloaderInfo.Bootloader))
	}

	if err := report("Querying device state ...", nil); err != nil {
		return err
	}

	imageState, err := c.ImageState(ctx)
	if err != nil {
		return wrapCodedError("smp.firmware_update.get_image_state", "fetch image state", err)
	}

	if err := report("Parsing firmware image ...", nil); err != nil {
		return err
	}

	info, err := mcuboot.ParseImageInfo(firmware)
	if err != nil {
		return wrapCodedError("smp.firmware_update.mcuboot_image", "parse firmware image", err)
	}

	active := activeImageEntry(imageState.Images)
	if active != nil && bytes.Equal(active.Hash, info.Hash[:]) {
		return newCodedError("smp.firmware_update.already_installed", "the device is already running the given firmware")
	}

	if err := report("Uploading new firmware ...", nil); err != nil {
		return err
	}

	uploadErr := c.UploadImage(ctx, 0, firmware, params.MTU, params.UpgradeOnly, func(uploaded, total uint32) bool {
		return progress == nil || progress("Uploading new firmware ...", &FirmwareUpdateProgress{Current: uint64(uploaded), Total: uint64(total)})
	})
	if uploadErr != nil {
		var coded *codedError
		if errors.As(uploadErr, &coded) && coded.code == "smp.client.image_upload.progress_cb_error" {
			return newCodedError("smp.firmware_update.progress_cb_error", "progress callback canceled firmware update")
		}
		return wrapCodedError("smp.firmware_update.image_upload", "upload firmware image", uploadErr)
	}

	if err := report("Activating new firmware ...", nil); err != nil {
		return err
	}

	_, setStateErr := c.SetImageState(ctx, info.Hash[:], params.ForceConfirm)
	if setStateErr != nil {
		imageAlreadyActive := false

		var devErr *DeviceError
		if errors.As(setStateErr, &devErr) && devErr.CommandNotSupported() {
			// Special case: an ENOTSUP here most likely means we're talking
			// to the MCUmgr recovery shell, which writes directly to the
			// active slot and doesn't support swap-based activation. Confirm
			// the new image is already active before treating this as
			// success, to avoid masking a real failure.
			if err := report("Querying device state ...", nil); err != nil {
				return err
			}

			recheck, err := c.ImageState(ctx)
			if err != nil {
				return wrapCodedError("smp.firmware_update.get_image_state", "re-fetch image state", err)
			}

			if again := activeImageEntry(recheck.Images); again != nil && bytes.Equal(again.Hash, info.Hash[:]) {
				imageAlreadyActive = true
			}
		}

		if !imageAlreadyActive {
			return wrapCodedError("smp.firmware_update.set_image_state", "activate new firmware image", setStateErr)
		}
	}

	if params.SkipReboot {
		return nil
	}

	if err := report("Triggering device reboot ...", nil); err != nil {
		return err
	}

	if err := c.Reset(ctx, false); err != nil {
		return wrapCodedError("smp.firmware_update.reboot", "trigger device reboot", err)
	}

	return nil
}

// activeImageEntry returns the entry for image 0, slot 0 (the currently
// running image), or nil if it isn't present in the state listing.
func activeImageEntry(images []ImageStateEntry) *ImageStateEntry {
	for i := range images {
		img := &images[i]
		imageNum := uint32(0)
		if img.Image != nil {
			imageNum = *img.Image
		}
		if imageNum == 0 && img.Slot == 0 {
			return img
		}
	}
	return nil
}
