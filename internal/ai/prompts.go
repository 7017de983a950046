package ai

import (
	"fmt"
	"sort"
	"strings"
)

const verdictContract = `Respond ONLY with a JSON object of this exact shape:
{"score": <number 0-100, where 100 means certainly authentic>, "isAuthentic": <true|false>, "explanation": "<two to four sentences citing the evidence>"}`

var aspectInstructions = map[Aspect]string{
	AspectVisual: `You are a digital image forensics analyst. Examine the attached image for signs of AI generation or manipulation:
1. Anatomical errors in hands, teeth, ears and eyes (pupil shape, reflections)
2. Inconsistent lighting, shadows and reflections
3. Texture anomalies such as waxy skin, repeated patterns or smeared backgrounds
4. Garbled or malformed text, logos and signage
5. Boundary artefacts from compositing, cloning or inpainting
6. Noise and compression patterns that differ between regions`,

	AspectVideo: `You are a video forensics analyst. Examine the attached video for signs of deepfake synthesis or editing:
1. Temporal consistency of faces, hair and background between frames
2. Lip-sync accuracy between mouth movement and speech
3. Blinking rate, head pose and micro-expression plausibility
4. Flicker, warping or blending seams around the face boundary
5. Frame artefacts such as ghosting, morphing or resolution changes
6. Lighting changes that do not follow the scene`,

	AspectAudio: `You are an audio forensics analyst. Examine the attached audio for signs of voice cloning or synthetic speech:
1. Spectral artefacts visible in a spectrogram, such as missing high frequencies or vocoder banding
2. Naturalness of breathing, pauses and prosody
3. Consistency of room tone, reverberation and background noise
4. Abrupt splices, repeated segments or unnatural transitions
5. Pronunciation and emotional intonation that match the context`,

	AspectMetadata: `You are a digital forensics analyst. Assess whether the following embedded file metadata is consistent with media captured by a real device and not produced or re-saved by generative or editing software:
1. Camera or recorder make and model, and whether they are present at all
2. Software, encoder or generator tags that indicate AI tools or editors
3. Plausibility of timestamps, GPS data, resolution and codec parameters
4. Missing fields that real capture devices normally write
If the metadata could not be extracted, treat that as weak evidence and score around 50.`,
}

func aspectPrompt(aspect Aspect, in MediaInput, hasMedia bool) string {
	var sb strings.Builder
	sb.WriteString(aspectInstructions[aspect])
	sb.WriteString("\n\n")

	if in.FileName != "" {
		fmt.Fprintf(&sb, "File name: %s\n", in.FileName)
	}
	fmt.Fprintf(&sb, "Media type: %s\n", in.MediaType)

	switch {
	case aspect == AspectMetadata:
		sb.WriteString("Metadata:\n")
		sb.WriteString(in.Metadata)
		sb.WriteString("\n")
	case !hasMedia && in.URL != "":
		fmt.Fprintf(&sb, "The media is available at: %s\n", in.URL)
	}

	sb.WriteString("\n")
	sb.WriteString(verdictContract)
	return sb.String()
}

func synthesisPrompt(in SynthesisInput) string {
	var sb strings.Builder
	sb.WriteString("You are writing the summary of a media authenticity report for a non-expert reader.\n\n")
	fmt.Fprintf(&sb, "Media type: %s\n", in.MediaType)
	if in.FileName != "" {
		fmt.Fprintf(&sb, "File name: %s\n", in.FileName)
	}
	fmt.Fprintf(&sb, "Overall authenticity: %.1f%%\n", in.Authenticity)
	fmt.Fprintf(&sb, "Verdict: %s\n", in.Status)

	sb.WriteString("Aspect scores (0-100, higher is more authentic):\n")
	for _, s := range []struct {
		name  string
		value *float64
	}{
		{"visual", in.Scores.Visual},
		{"video", in.Scores.Video},
		{"audio", in.Scores.Audio},
		{"metadata", in.Scores.Metadata},
	} {
		if s.value != nil {
			fmt.Fprintf(&sb, "- %s: %.1f\n", s.name, *s.value)
		}
	}

	if len(in.Findings) > 0 {
		sb.WriteString("Analyst findings:\n")
		keys := make([]string, 0, len(in.Findings))
		for k := range in.Findings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, in.Findings[k])
		}
	}

	sb.WriteString(`
Explain the verdict in one short paragraph and list three to five concrete steps the reader can take to verify the media themselves.
Respond ONLY with a JSON object of this exact shape:
{"explanation": "<paragraph>", "verificationTips": ["<step>", "..."]}`)
	return sb.String()
}

func fallbackSynthesis(status string) Synthesis {
	explanation := "A detailed explanation could not be generated for this analysis."
	if status != "" {
		explanation = fmt.Sprintf("The media was assessed as %q. A detailed explanation could not be generated for this analysis.", status)
	}
	return Synthesis{
		Explanation: explanation,
		VerificationTips: []string{
			"Run a reverse image or video search to find earlier copies of the media.",
			"Check whether a reputable source has published the same content.",
			"Inspect faces, hands, text and edges closely for distortions.",
			"Compare the file's metadata with the claimed capture device and date.",
		},
	}
}
