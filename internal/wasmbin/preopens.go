package wasmbin

// Memory layout of PreopenLister modules.
const (
	// PrestatAddr receives the prestat struct: tag byte, then the u32
	// name length at PrestatAddr+4.
	PrestatAddr = 0
	// PreopenNameAddr receives the directory name.
	PreopenNameAddr = 16
)

// PreopenLister builds a module that reports the directories WASI
// preopened for it. It exports:
//
//	prestat(fd) -> errno       fd_prestat_get(fd, PrestatAddr)
//	prestat_name(fd) -> errno  fd_prestat_dir_name(fd, PreopenNameAddr, len)
//
// Calling prestat for fd 3, 4, ... until it returns a non-zero errno
// enumerates every preopen the module can see.
func PreopenLister() []byte {
	m := New()
	i32 := []ValType{I32}

	prestatGet := m.ImportFunc("wasi_snapshot_preview1", "fd_prestat_get",
		[]ValType{I32, I32}, i32)
	prestatDirName := m.ImportFunc("wasi_snapshot_preview1", "fd_prestat_dir_name",
		[]ValType{I32, I32, I32}, i32)

	m.Memory(1, "memory")

	m.Func("prestat", i32, i32, nil, Code(
		LocalGet(0), I32Const(PrestatAddr), Call(prestatGet),
	))
	m.Func("prestat_name", i32, i32, nil, Code(
		LocalGet(0), I32Const(PreopenNameAddr),
		I32Const(PrestatAddr), I32Load(4),
		Call(prestatDirName),
	))

	return m.Encode()
}
