package tokenizer

// isContinuationByte reports whether b is a UTF-8 continuation byte
// (10xxxxxx).
func isContinuationByte(b byte) bool {
	return b&0xC0 == 0x80
}

// Encode converts text into a sequence of token ids. It does not add the
// BOS token; callers that need a beginning-of-sequence marker prepend id 1
// themselves (the driver's concern).
func (t *Tokenizer) Encode(text string) []int32 {
	var ids []int32

	// Step 2: emit the dummy SentencePiece prefix token (a single space),
	// if the vocabulary has one.
	if spaceID, ok := t.id(" "); ok {
		ids = append(ids, spaceID)
	}

	ids = t.seed(text, ids)
	ids = t.mergeBPE(ids)

	return ids
}

// seed performs UTF-8-aware byte-fallback pre-tokenization: walk the
// input bytewise, accumulating one codepoint (up to 4 bytes) at a time,
// and emit its vocabulary id if found, or each raw byte as id byte+3
// otherwise.
func (t *Tokenizer) seed(text string, ids []int32) []int32 {
	b := []byte(text)
	start := 0

	for i := 0; i < len(b); i++ {
		if !isContinuationByte(b[i]) {
			start = i
		}

		bufLen := i - start + 1
		// Keep accumulating while the next byte continues this codepoint
		// and we haven't hit the 4-byte UTF-8 cap.
		if i+1 < len(b) && isContinuationByte(b[i+1]) && bufLen < 4 {
			continue
		}

		piece := string(b[start : i+1])
		if id, ok := t.id(piece); ok {
			ids = append(ids, id)
		} else {
			for _, raw := range b[start : i+1] {
				ids = append(ids, int32(raw)+byteFallbackOffset)
			}
		}
		start = i + 1
	}

	return ids
}

// mergeBPE repeatedly merges the highest-scoring adjacent pair present in
// the vocabulary until no pair has an entry.
func (t *Tokenizer) mergeBPE(ids []int32) []int32 {
	for {
		bestScore := float32(-1e10)
		bestID := int32(-1)
		bestIdx := -1

		for i := 0; i+1 < len(ids); i++ {
			candidate := t.vocab[ids[i]] + t.vocab[ids[i+1]]
			if id, ok := t.id(candidate); ok {
				if score := t.scores[id]; score > bestScore {
					bestScore = score
					bestID = id
					bestIdx = i
				}
			}
		}

		if bestIdx == -1 {
			return ids
		}

		ids[bestIdx] = bestID
		ids = append(ids[:bestIdx+1], ids[bestIdx+2:]...)
	}
}
