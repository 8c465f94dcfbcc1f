// Package vkmirror is citcrun's optional hardware mirror backend: it
// uploads the software rasterizer's presented frame into a Vulkan
// host-visible buffer on a real GPU, so a future hardware-accelerated
// present path has somewhere to start from without touching the CPU
// pipeline that does the actual D3D11/SM4 work.
//
// Grounded on voodoo_vulkan.go's VulkanBackend init sequence
// (SetDefaultGetInstanceProcAddr -> Init -> createInstance ->
// selectPhysicalDevice -> createDevice), trimmed to the instance/device/
// staging-buffer subset a pixel mirror needs — no render pass, pipeline,
// or shader modules, since this backend never rasterizes anything itself.
package vkmirror

import (
	"fmt"
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
)

var (
	loaderOnce sync.Once
	loaderErr  error
)

func ensureLoader() error {
	loaderOnce.Do(func() {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			loaderErr = fmt.Errorf("vkmirror: loading Vulkan library: %w", err)
			return
		}
		loaderErr = vk.Init()
	})
	return loaderErr
}

// Mirror owns a Vulkan instance/device and a host-visible staging buffer
// sized for one frame's worth of RGBA8 pixels.
type Mirror struct {
	mu sync.Mutex

	hasInstance bool
	instance    vk.Instance
	physDevice  vk.PhysicalDevice
	hasDevice   bool
	device      vk.Device
	queueFamily uint32

	hasBuffer  bool
	buffer     vk.Buffer
	memory     vk.DeviceMemory
	bufferSize int
}

// New initializes a Vulkan instance and logical device on the first
// graphics-capable GPU found. A non-nil error means no usable Vulkan
// driver is present, and the caller should simply not mirror frames.
func New() (*Mirror, error) {
	if err := ensureLoader(); err != nil {
		return nil, err
	}

	m := &Mirror{}
	if err := m.createInstance(); err != nil {
		return nil, err
	}
	if err := m.selectPhysicalDevice(); err != nil {
		m.destroyInstance()
		return nil, err
	}
	if err := m.createDevice(); err != nil {
		m.destroyInstance()
		return nil, err
	}
	return m, nil
}

func (m *Mirror) createInstance() error {
	appInfo := vk.ApplicationInfo{
		SType:         vk.StructureTypeApplicationInfo,
		PEngineName:   safeString("citcrun"),
		EngineVersion: vk.MakeVersion(1, 0, 0),
		ApiVersion:    vk.MakeVersion(1, 1, 0),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}
	var instance vk.Instance
	if res := vk.CreateInstance(&createInfo, nil, &instance); res != vk.Success {
		return fmt.Errorf("vkmirror: vkCreateInstance failed: %d", res)
	}
	m.instance = instance
	m.hasInstance = true
	vk.InitInstance(instance)
	return nil
}

func (m *Mirror) selectPhysicalDevice() error {
	var count uint32
	vk.EnumeratePhysicalDevices(m.instance, &count, nil)
	if count == 0 {
		return fmt.Errorf("vkmirror: no Vulkan-capable GPUs found")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(m.instance, &count, devices)

	for _, dev := range devices {
		var qfCount uint32
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &qfCount, nil)
		qfs := make([]vk.QueueFamilyProperties, qfCount)
		vk.GetPhysicalDeviceQueueFamilyProperties(dev, &qfCount, qfs)
		for i, qf := range qfs {
			qf.Deref()
			if qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
				m.physDevice = dev
				m.queueFamily = uint32(i)
				return nil
			}
		}
	}
	return fmt.Errorf("vkmirror: no GPU with a graphics queue found")
}

func (m *Mirror) createDevice() error {
	priority := float32(1.0)
	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: m.queueFamily,
		QueueCount:       1,
		PQueuePriorities: []float32{priority},
	}
	deviceInfo := vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos:    []vk.DeviceQueueCreateInfo{queueInfo},
	}
	var device vk.Device
	if res := vk.CreateDevice(m.physDevice, &deviceInfo, nil, &device); res != vk.Success {
		return fmt.Errorf("vkmirror: vkCreateDevice failed: %d", res)
	}
	m.device = device
	m.hasDevice = true
	return nil
}

// Mirror uploads pixels (tightly packed RGBA8, width*height*4 bytes) into
// a host-visible staging buffer, reallocating it if the frame size
// changed. The buffer is never read back in this core — it exists so a
// GPU-resident copy of every presented frame is available to attach a
// real swapchain present path to later.
func (m *Mirror) Mirror(pixels []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(pixels) != m.bufferSize {
		if err := m.reallocBuffer(len(pixels)); err != nil {
			return err
		}
	}

	var data unsafe.Pointer
	if res := vk.MapMemory(m.device, m.memory, 0, vk.DeviceSize(len(pixels)), 0, &data); res != vk.Success {
		return fmt.Errorf("vkmirror: vkMapMemory failed: %d", res)
	}
	dst := unsafe.Slice((*byte)(data), len(pixels))
	copy(dst, pixels)
	vk.UnmapMemory(m.device, m.memory)
	return nil
}

func (m *Mirror) reallocBuffer(size int) error {
	if m.hasBuffer {
		vk.DestroyBuffer(m.device, m.buffer, nil)
		vk.FreeMemory(m.device, m.memory, nil)
		m.hasBuffer = false
	}

	bufInfo := vk.BufferCreateInfo{
		SType: vk.StructureTypeBufferCreateInfo,
		Size:  vk.DeviceSize(size),
		Usage: vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
	}
	var buf vk.Buffer
	if res := vk.CreateBuffer(m.device, &bufInfo, nil, &buf); res != vk.Success {
		return fmt.Errorf("vkmirror: vkCreateBuffer failed: %d", res)
	}

	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(m.device, buf, &reqs)
	reqs.Deref()

	typeIdx, err := m.findMemoryType(reqs.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(m.device, buf, nil)
		return err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: typeIdx,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(m.device, &allocInfo, nil, &mem); res != vk.Success {
		vk.DestroyBuffer(m.device, buf, nil)
		return fmt.Errorf("vkmirror: vkAllocateMemory failed: %d", res)
	}
	vk.BindBufferMemory(m.device, buf, mem, 0)

	m.buffer = buf
	m.memory = mem
	m.bufferSize = size
	m.hasBuffer = true
	return nil
}

func (m *Mirror) findMemoryType(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(m.physDevice, &memProps)
	memProps.Deref()
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		memProps.MemoryTypes[i].Deref()
		if typeBits&(1<<i) != 0 && memProps.MemoryTypes[i].PropertyFlags&properties == properties {
			return i, nil
		}
	}
	return 0, fmt.Errorf("vkmirror: no suitable memory type")
}

// Close releases every Vulkan object this Mirror owns.
func (m *Mirror) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasBuffer {
		vk.DestroyBuffer(m.device, m.buffer, nil)
		vk.FreeMemory(m.device, m.memory, nil)
		m.hasBuffer = false
	}
	m.destroyDevice()
	m.destroyInstance()
}

func (m *Mirror) destroyDevice() {
	if m.hasDevice {
		vk.DestroyDevice(m.device, nil)
		m.hasDevice = false
	}
}

func (m *Mirror) destroyInstance() {
	if m.hasInstance {
		vk.DestroyInstance(m.instance, nil)
		m.hasInstance = false
	}
}

func safeString(s string) string {
	return s + "\x00"
}
