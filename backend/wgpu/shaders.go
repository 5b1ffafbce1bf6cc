// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/gogpu/hashgrid/gpucore"
	"github.com/gogpu/naga"
)

//go:embed shaders/*.wgsl shaders/*.tmpl
var shaderFS embed.FS

var sortTemplate = template.Must(template.ParseFS(shaderFS, "shaders/sort.wgsl.tmpl"))

// moduleSource is one WGSL shader module of a program.
type moduleSource struct {
	Label   string
	WGSL    string
	Entries []string

	// Threads is the group size of the module's entry points.
	Threads uint32

	// Storage is the group memory the entry points need, in bytes.
	Storage uint32
}

// programFiles maps single-module programs to their source file.
var programFiles = map[string]struct {
	file    string
	entries []string
}{
	gpucore.ProgramUpdateBounds: {"bounds.wgsl", []string{gpucore.EntryMain}},
	gpucore.ProgramUpdateList:   {"list.wgsl", []string{gpucore.EntryMain}},
	gpucore.ProgramCellStart:    {"cellstart.wgsl", []string{gpucore.EntryClearCellStart, gpucore.EntryComputeCellStart}},
	gpucore.ProgramStatistics:   {"statistics.wgsl", []string{gpucore.EntryMain}},
}

func readShader(name string) (string, error) {
	b, err := shaderFS.ReadFile("shaders/" + name)
	if err != nil {
		return "", fmt.Errorf("wgpu: read shader %s: %w", name, err)
	}
	return string(b), nil
}

// withCommon prepends the shared Params block and helpers.
func withCommon(src string) (string, error) {
	common, err := readShader("common.wgsl")
	if err != nil {
		return "", err
	}
	return common + "\n" + src, nil
}

// programSources returns the shader modules of a program. The sort program
// gets one module per bitonic variant plus a pre-pass module sized for
// the device's local sort limit and the merge module.
func programSources(name string, limits gpucore.Limits) ([]moduleSource, error) {
	if name == gpucore.ProgramSortList {
		return sortSources(limits)
	}
	pf, ok := programFiles[name]
	if !ok {
		return nil, fmt.Errorf("wgpu: %q: %w", name, gpucore.ErrProgramNotFound)
	}
	src, err := readShader(pf.file)
	if err != nil {
		return nil, err
	}
	wgsl, err := withCommon(src)
	if err != nil {
		return nil, err
	}
	return []moduleSource{{
		Label:   name,
		WGSL:    wgsl,
		Entries: pf.entries,
		Threads: gpucore.ThreadsPerGroup,
	}}, nil
}

func sortSources(limits gpucore.Limits) ([]moduleSource, error) {
	kernels := append([]gpucore.SortKernel(nil), gpucore.SortKernels...)
	kernels = append(kernels, gpucore.SortKernel{
		Entry:   gpucore.EntryBitonicPrePass,
		Size:    limits.LocalSortLimit(),
		Threads: gpucore.PrePassThreads,
	})

	out := make([]moduleSource, 0, len(kernels)+1)
	for _, k := range kernels {
		wgsl, err := renderSort(k)
		if err != nil {
			return nil, err
		}
		out = append(out, moduleSource{
			Label:   gpucore.ProgramSortList + "/" + k.Entry,
			WGSL:    wgsl,
			Entries: []string{k.Entry},
			Threads: k.Threads,
			Storage: k.Size * 8,
		})
	}

	merge, err := readShader("merge.wgsl")
	if err != nil {
		return nil, err
	}
	wgsl, err := withCommon(merge)
	if err != nil {
		return nil, err
	}
	out = append(out, moduleSource{
		Label:   gpucore.ProgramSortList + "/" + gpucore.EntryMergePass,
		WGSL:    wgsl,
		Entries: []string{gpucore.EntryMergePass},
		Threads: gpucore.ThreadsPerGroup,
	})
	return out, nil
}

func renderSort(k gpucore.SortKernel) (string, error) {
	var buf bytes.Buffer
	if err := sortTemplate.Execute(&buf, k); err != nil {
		return "", fmt.Errorf("wgpu: render %s: %w", k.Entry, err)
	}
	return withCommon(buf.String())
}

// fits reports whether the module's entry points run within limits.
func (m moduleSource) fits(limits gpucore.Limits) bool {
	return m.Threads <= limits.MaxWorkgroupInvocations && m.Storage <= limits.MaxWorkgroupStorageSize
}

// compileSPIRV compiles WGSL to SPIR-V words.
func compileSPIRV(label, wgsl string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("wgpu: compile %s: %w", label, err)
	}

	// SPIR-V is little-endian 32-bit words
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
