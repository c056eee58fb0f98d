package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Orchestration level messages (info)
		"Starting decode run %s":                                        "デコードを開始します (実行ID %s)",
		"Scale: time x%d, spatial x%d (%s)":                             "スケール: 時間 x%d, 空間 x%d (%s)",
		"Planned %d chunks for %d latent frames (batch %d, overlap %d)": "%[2]d 潜在フレームを %[1]d チャンクに分割 (バッチ %[3]d, オーバーラップ %[4]d)",
		"Chunk %d/%d: latent [%d,%d) -> %d frames":                      "チャンク %d/%d: 潜在 [%d,%d) -> %d フレーム",
		"Decoding still image":                                          "静止画をデコード中",
		"Sync OK: %d frames":                                            "同期OK: %d フレーム",
		"Decode completed: %d frames in %d ms":                          "デコード完了: %d フレーム (%d ms)",

		// Orchestration level messages (warn, error)
		"Cancelled before chunk %d of %d, discarding %d frames": "チャンク %d/%d の前にキャンセルされました。%d フレームを破棄します",
		"Failed to decode chunk %d: %s":                         "チャンク %d のデコードに失敗しました: %s",
		"%s kept %d frames, expected %d":                        "%s の保持フレーム数 %d (期待値 %d)",
		"Length mismatch: got %d frames, expected %d (%+d)":     "長さ不一致: %d フレーム (期待値 %d, %+d)",

		// Scale stage
		"Scale override: time x%d":                  "スケール指定: 時間 x%d",
		"Scale cached: time x%d, spatial x%d":       "キャッシュ済みスケール: 時間 x%d, 空間 x%d",
		"Scale declared by decoder: time x%d":       "デコーダ申告スケール: 時間 x%d",
		"Scale probe failed, assuming time x%d: %s": "スケール計測に失敗しました。時間 x%d とみなします: %s",
		"Scale probed: time x%d, spatial x%d":       "スケール計測: 時間 x%d, 空間 x%d",

		"Scale measurement failed on a %d-frame crop, retrying with %d frames: %s": "%d フレームの切り出しでスケール計測に失敗しました。%d フレームで再試行します: %s",

		// Invoke stage
		"Decoded %s after %d steps (%s)":           "%s を %d 段階の縮退後にデコードしました (%s)",
		"Decode of %s failed, retrying once: %s":   "%s のデコードに失敗しました。1回だけ再試行します: %s",
		"Out of memory on %s, no degradation left": "%s でメモリ不足。これ以上縮退できません",
		"Out of memory on %s, retrying with %s":    "%s でメモリ不足。%s で再試行します",

		// Export stage
		"Writing %d frames to %s with %d workers": "%d フレームを %s に %d ワーカーで書き出し中",
		"Contact sheet saved to %s":               "コンタクトシートを %s に保存しました",
		"Encoding %d frames at %.3g fps":          "%d フレームを %.3g fps でエンコード中",
	})
}
