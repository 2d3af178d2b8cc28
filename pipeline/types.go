package pipeline

// InterfaceType tags the kind of value carried by an input or output
type InterfaceType string

const (
	TextStream   InterfaceType = "TextStream"
	BinaryStream InterfaceType = "BinaryStream"
	TextFile     InterfaceType = "TextFile"
	BinaryFile   InterfaceType = "BinaryFile"
	JSONObject   InterfaceType = "JsonCompatible"
	BinaryArray  InterfaceType = "BinaryArray"
	Image        InterfaceType = "Image"
	Mesh         InterfaceType = "Mesh"
	PolyData     InterfaceType = "PolyData"
)

// IsFile reports whether values of this kind are exchanged through the
// filesystem rather than module memory.
func (t InterfaceType) IsFile() bool {
	return t == TextFile || t == BinaryFile
}

// ParseInterfaceType accepts the canonical names and common lower-case aliases.
func ParseInterfaceType(s string) (InterfaceType, bool) {
	switch s {
	case "TextStream", "text-stream", "text":
		return TextStream, true
	case "BinaryStream", "binary-stream", "binary":
		return BinaryStream, true
	case "TextFile", "text-file":
		return TextFile, true
	case "BinaryFile", "binary-file":
		return BinaryFile, true
	case "JsonCompatible", "JSONObject", "json":
		return JSONObject, true
	case "BinaryArray", "binary-array", "array":
		return BinaryArray, true
	case "Image", "image":
		return Image, true
	case "Mesh", "mesh":
		return Mesh, true
	case "PolyData", "polydata":
		return PolyData, true
	}
	return "", false
}

// Input is one value passed to the module. Its input index is its
// position in the slice given to Run.
type Input struct {
	Type InterfaceType

	// Data holds the payload of BinaryArray, BinaryStream and TextStream
	// (UTF-8) inputs. Empty data is passed as a null pointer.
	Data []byte

	// JSON holds the payload of JSONObject inputs.
	JSON map[string]any

	// Path is the host path of TextFile and BinaryFile inputs.
	Path string

	// SubIndex selects one part of a multi-part array input.
	SubIndex uint32
}

// BinaryArrayInput passes raw bytes through the array allocator
func BinaryArrayInput(data []byte) Input {
	return Input{Type: BinaryArray, Data: data}
}

// BinaryArrayPart passes one part of a multi-part array input
func BinaryArrayPart(data []byte, subIndex uint32) Input {
	return Input{Type: BinaryArray, Data: data, SubIndex: subIndex}
}

func TextStreamInput(s string) Input {
	return Input{Type: TextStream, Data: []byte(s)}
}

func BinaryStreamInput(data []byte) Input {
	return Input{Type: BinaryStream, Data: data}
}

func JSONInput(obj map[string]any) Input {
	return Input{Type: JSONObject, JSON: obj}
}

func TextFileInput(path string) Input {
	return Input{Type: TextFile, Path: path}
}

func BinaryFileInput(path string) Input {
	return Input{Type: BinaryFile, Path: path}
}

// OutputSpec declares the kind expected at an output index. File kinds
// also declare the host path the module writes to.
type OutputSpec struct {
	Type InterfaceType
	Path string
}

// Output is a populated result
type Output struct {
	Type InterfaceType

	// Text is set for TextStream outputs.
	Text string

	// Data is set for BinaryStream outputs.
	Data []byte

	// JSON is set for JSONObject outputs. Numbers decode as float64.
	JSON map[string]any

	// Path is set for TextFile and BinaryFile outputs.
	Path string
}
