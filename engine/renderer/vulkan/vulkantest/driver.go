// Package vulkantest provides an in-memory vulkan.Driver with scriptable
// surface capabilities, fault injection and fence bookkeeping.
package vulkantest

import (
	"math"
	"sync"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/flowforge/engine/renderer/vulkan"
)

// FenceCompletion selects when submitted work signals its fence.
type FenceCompletion int

const (
	// CompleteOnSubmit signals the fence as soon as work is submitted.
	CompleteOnSubmit FenceCompletion = iota
	// CompleteOnWait leaves fences pending until Complete is called or the
	// fence is waited on. A wait on a pending fence counts as a blocking wait.
	CompleteOnWait
)

type fenceState struct {
	signaled bool
	// Submitted work that has not signaled yet.
	pending bool
	// Bumped on every submission that will signal this fence.
	submissions int
	// Driver waits since the last submission.
	waitsSinceSubmit int
}

type swapchainState struct {
	info   vulkan.SwapchainCreateInfo
	images []vulkan.ImageHandle
	next   uint32
}

type SubmitRecord struct {
	Queue  vulkan.QueueHandle
	Info   vulkan.SubmitInfo
	Fence  vulkan.FenceHandle
	Number int
}

type PresentRecord struct {
	Swapchain  vulkan.SwapchainHandle
	ImageIndex uint32
	Wait       vulkan.SemaphoreHandle
}

type Command struct {
	Name          string
	CommandBuffer vulkan.CommandBufferHandle
}

// Driver is a fake vulkan.Driver. All fields may be changed between calls to
// script the surface; counters and records are read back by tests.
type Driver struct {
	mu sync.Mutex

	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
	DepthFormats []vk.Format
	Anisotropy   float32
	Completion   FenceCompletion

	// Results returned by the Nth (1-based) call of the operation.
	AcquireResults map[int]vk.Result
	PresentResults map[int]vk.Result
	SubmitResults  map[int]vk.Result
	// When set, every wait on a pending fence returns this instead of completing it.
	WaitResult vk.Result
	// When set, waits on a pending fence with a finite timeout return this,
	// as if the GPU were slower than the timeout. Unbounded waits still complete.
	BoundedWaitResult vk.Result

	nextHandle uint64

	fences          map[vulkan.FenceHandle]*fenceState
	semaphores      map[vulkan.SemaphoreHandle]bool
	commandBuffers  map[vulkan.CommandBufferHandle]bool
	renderPasses    map[vulkan.RenderPassHandle]vulkan.RenderPassCreateInfo
	framebuffers    map[vulkan.FramebufferHandle][]vulkan.ImageViewHandle
	swapchains      map[vulkan.SwapchainHandle]*swapchainState
	images          map[vulkan.ImageHandle]vulkan.ImageCreateInfo
	swapchainImages map[vulkan.ImageHandle]vulkan.SwapchainHandle
	views           map[vulkan.ImageViewHandle]vulkan.ImageHandle
	buffers         map[vulkan.BufferHandle][]byte
	samplers        map[vulkan.SamplerHandle]vulkan.SamplerCreateInfo

	AcquireCalls     int
	PresentCalls     int
	SubmitCalls      int
	DeviceWaitIdles  int
	QueueWaitIdles   int
	BlockingWaits    int
	DoubleWaits      int
	Submits          []SubmitRecord
	Presents         []PresentRecord
	SwapchainCreates []vulkan.SwapchainCreateInfo
	Commands         []Command
	Destroyed        bool

	// Acquires handed a semaphore that was still signaled from an earlier,
	// never consumed acquire. The real API forbids it.
	SignaledSemaphoreAcquires int
}

var _ vulkan.Driver = (*Driver)(nil)

// NewDriver returns a driver whose surface is width x height and allows 2 to 8
// images in every present mode.
func NewDriver(width, height uint32) *Driver {
	d := &Driver{
		Formats: []vk.SurfaceFormat{
			{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
			{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		},
		PresentModes:    []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox, vk.PresentModeImmediate},
		DepthFormats:    []vk.Format{vk.FormatD32Sfloat},
		Anisotropy:      16,
		AcquireResults:  map[int]vk.Result{},
		PresentResults:  map[int]vk.Result{},
		SubmitResults:   map[int]vk.Result{},
		WaitResult:      vk.Success,
		fences:          map[vulkan.FenceHandle]*fenceState{},
		semaphores:      map[vulkan.SemaphoreHandle]bool{},
		commandBuffers:  map[vulkan.CommandBufferHandle]bool{},
		renderPasses:    map[vulkan.RenderPassHandle]vulkan.RenderPassCreateInfo{},
		framebuffers:    map[vulkan.FramebufferHandle][]vulkan.ImageViewHandle{},
		swapchains:      map[vulkan.SwapchainHandle]*swapchainState{},
		images:          map[vulkan.ImageHandle]vulkan.ImageCreateInfo{},
		swapchainImages: map[vulkan.ImageHandle]vulkan.SwapchainHandle{},
		views:           map[vulkan.ImageViewHandle]vulkan.ImageHandle{},
		buffers:         map[vulkan.BufferHandle][]byte{},
		samplers:        map[vulkan.SamplerHandle]vulkan.SamplerCreateInfo{},
	}
	d.SetSurfaceSize(width, height)
	d.Capabilities.MinImageCount = 2
	d.Capabilities.MaxImageCount = 8
	d.Capabilities.MinImageExtent = vk.Extent2D{Width: 1, Height: 1}
	d.Capabilities.MaxImageExtent = vk.Extent2D{Width: 16384, Height: 16384}
	d.Capabilities.CurrentTransform = vk.SurfaceTransformIdentityBit
	return d
}

// SetSurfaceSize changes the current extent reported by the surface. A zero
// size models a minimized window.
func (d *Driver) SetSurfaceSize(width, height uint32) {
	d.Capabilities.CurrentExtent = vk.Extent2D{Width: width, Height: height}
}

// SetUndefinedExtent makes the surface report the special extent that lets the
// swapchain pick its own size.
func (d *Driver) SetUndefinedExtent() {
	d.Capabilities.CurrentExtent = vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32}
}

func (d *Driver) handle() uint64 {
	d.nextHandle++
	return d.nextHandle
}

func (d *Driver) record(name string, cb vulkan.CommandBufferHandle) {
	d.Commands = append(d.Commands, Command{Name: name, CommandBuffer: cb})
}

// Complete signals every fence with submitted work, as if the GPU caught up.
func (d *Driver) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drain()
}

// CompleteFence signals a single fence.
func (d *Driver) CompleteFence(h vulkan.FenceHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.fences[h]; ok && f.pending {
		f.signaled = true
		f.pending = false
	}
}

// SemaphoreSignaled reports whether a semaphore has a signal nobody waited on yet.
func (d *Driver) SemaphoreSignaled(h vulkan.SemaphoreHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.semaphores[h]
}

func (d *Driver) FenceSignaled(h vulkan.FenceHandle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	return ok && f.signaled
}

// LiveObjects counts every object not yet destroyed, swapchain images excluded.
func (d *Driver) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fences) + len(d.semaphores) + len(d.commandBuffers) + len(d.renderPasses) +
		len(d.framebuffers) + len(d.swapchains) + len(d.images) + len(d.views) + len(d.buffers) + len(d.samplers)
}

func (d *Driver) LiveSwapchains() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.swapchains)
}

func (d *Driver) LiveFramebuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.framebuffers)
}

// BufferContents returns a copy of what was written to a buffer.
func (d *Driver) BufferContents(h vulkan.BufferHandle) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.buffers[h]...)
}

func (d *Driver) CommandsNamed(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.Commands {
		if c.Name == name {
			n++
		}
	}
	return n
}
