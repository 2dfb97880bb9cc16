// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpuhost runs a gpurt runtime on the device of a gogpu window.
//
// A host application that already owns a device shares it with the
// runtime instead of opening a second one:
//
//	host, err := gpuhost.New(app.GPUContextProvider())
//	if err != nil {
//	    return err
//	}
//	defer host.Close()
//
//	_, err = host.Frame(ctx, "ui", func(f *gpurt.Frame) error {
//	    rt, err := f.AcquireRenderTarget(host.SurfaceTarget(800, 600))
//	    if err != nil {
//	        return err
//	    }
//	    f.BeginRenderPass(...)
//	    return nil
//	})
//
// # Integration Without Circular Imports
//
// The package depends on gpucontext only. The provider must additionally
// expose HalDevice() and HalQueue(), as gogpu providers do.
//
// # Thread Safety
//
// Host is safe for concurrent use; Frame may be called from several
// goroutines, each recording its own frame.
package gpuhost
