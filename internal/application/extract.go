package application

// Multi-shape response parsing. The proxy fronts several backend versions
// whose response schemas drifted over time, so values like media IDs and
// result URLs are looked up through an ordered list of candidate paths.
// The redundancy is a compatibility contract, not an accident.

// lookupString walks a decoded JSON value along path, where a string step
// indexes a map and an int step indexes a slice.
func lookupString(root any, path ...any) (string, bool) {
	current := root
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := current.(map[string]any)
			if !ok {
				return "", false
			}
			current, ok = m[key]
			if !ok {
				return "", false
			}
		case int:
			list, ok := current.([]any)
			if !ok || key < 0 || key >= len(list) {
				return "", false
			}
			current = list[key]
		default:
			return "", false
		}
	}

	value, ok := current.(string)
	return value, ok && value != ""
}

type fieldExtractor func(map[string]any) (string, bool)

// firstMatch tries extractors in order and returns the first hit.
func firstMatch(data map[string]any, extractors []fieldExtractor) (string, bool) {
	for _, extract := range extractors {
		if value, ok := extract(data); ok {
			return value, true
		}
	}
	return "", false
}

func pathExtractor(path ...any) fieldExtractor {
	return func(data map[string]any) (string, bool) {
		return lookupString(data, path...)
	}
}

// Known shapes for the media ID returned by an upload call.
var mediaIDExtractors = []fieldExtractor{
	pathExtractor("result", "data", "json", "result", "uploadMediaGenerationId"),
	pathExtractor("mediaGenerationId", "mediaGenerationId"),
	pathExtractor("mediaId"),
}

// Known shapes for the playable result URL in a finished video operation.
var videoURLExtractors = []fieldExtractor{
	pathExtractor("operation", "metadata", "video", "fifeUrl"),
	pathExtractor("metadata", "video", "fifeUrl"),
	pathExtractor("result", "generatedVideo", 0, "fifeUrl"),
	pathExtractor("result", "generatedVideos", 0, "fifeUrl"),
	pathExtractor("video", "fifeUrl"),
	pathExtractor("fifeUrl"),
}

// Known shapes for the thumbnail base URI of a finished video operation.
var videoThumbnailExtractors = []fieldExtractor{
	pathExtractor("operation", "metadata", "video", "servingBaseUri"),
	pathExtractor("metadata", "video", "servingBaseUri"),
}

// Known shapes for the base64 payload of a generated image.
var generatedImageExtractors = []fieldExtractor{
	pathExtractor("imagePanels", 0, "generatedImages", 0, "encodedImage"),
	pathExtractor("result", "imagePanels", 0, "generatedImages", 0, "encodedImage"),
	pathExtractor("generatedImages", 0, "encodedImage"),
	pathExtractor("encodedImage"),
}

// ExtractGeneratedImage returns the base64-encoded image payload from a
// generation response, whichever shape it arrived in.
func ExtractGeneratedImage(data map[string]any) (string, bool) {
	return firstMatch(data, generatedImageExtractors)
}
