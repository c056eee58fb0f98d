// Package main provides localization for the chunkdecode CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Input":               "入力",
		"Chunking and Tiling": "チャンクとタイル",
		"Decoder":             "デコーダ",
		"Output":              "出力先",
		"Debug":               "デバッグ",
		"Logging":             "ログ",

		// Root command
		"Decode long latent sequences in overlapping chunks":                                                "長い潜在シーケンスを重なり合うチャンクでデコード",
		"chunkdecode decodes latent tensors into frames, videos and contact sheets within a memory budget.": "chunkdecodeはメモリ予算内で潜在テンソルをフレーム、動画、コンタクトシートにデコードします。",
		"Error: %s": "エラー: %s",

		// Decode command
		"Decode a latent file into frames and video":                                                 "潜在ファイルをフレームと動画にデコード",
		"Decode the latents in a safetensors file chunk by chunk, then write the requested outputs.": "safetensorsファイルの潜在をチャンクごとにデコードし、指定された出力を書き出します。",

		// Input flags
		"YAML configuration file": "YAML設定ファイル",
		"Tensor name in the latent file (default: latents, samples or latent)":   "潜在ファイル内のテンソル名（デフォルト: latents, samples, latent）",
		"Decode synthetic latents of size FRAMESxHEIGHTxWIDTH instead of a file": "ファイルの代わりに FRAMESxHEIGHTxWIDTH の合成潜在をデコード",
		"Latent channels of synthetic latents":                                   "合成潜在のチャンネル数",

		// Chunking and tiling flags
		"Memory preset (low, medium, high)":                                "メモリプリセット（low, medium, high）",
		"Latent frames per chunk (overrides memory preset)":                "チャンクあたりの潜在フレーム数（メモリプリセットを上書き）",
		"Context frames on each side of a chunk (overrides memory preset)": "チャンク両側のコンテキストフレーム数（メモリプリセットを上書き）",
		"Start with tiled decoding":                                        "タイルデコードで開始",
		"Tile edge in output pixels":                                       "タイルの一辺（出力ピクセル）",
		"Smallest tile edge tried when out of memory":                      "メモリ不足時に試す最小タイルサイズ",
		"Tile in chunkdecode when the decoder cannot":                      "デコーダが対応しない場合にchunkdecode側でタイル分割",
		"Force the time scale instead of detecting it":                     "時間スケールを検出せずに指定",
		"Reclaim memory every N chunks (0 = never)":                        "Nチャンクごとにメモリを解放（0 = 解放しない）",

		// Decoder flags
		"Output frames per latent frame of the reference decoder":   "参照デコーダの潜在フレームあたりの出力フレーム数",
		"Output pixels per latent pixel of the reference decoder":   "参照デコーダの潜在ピクセルあたりの出力ピクセル数",
		"Output channels of the reference decoder":                  "参照デコーダの出力チャンネル数",
		"Bytes the decoder may allocate per call (0 = unlimited)":   "デコーダが1回の呼び出しで確保できるバイト数（0 = 無制限）",
		"Let the decoder declare its time scale instead of probing": "計測せずにデコーダの申告する時間スケールを使用",

		// Output flags
		"Output MP4 file path":                    "出力MP4ファイルパス",
		"Directory for the image sequence":        "連番画像の出力ディレクトリ",
		"Image format (png, jpeg)":                "画像形式（png, jpeg）",
		"JPEG quality (1-100)":                    "JPEG品質（1-100）",
		"Video frame rate":                        "動画のフレームレート",
		"Video CRF value (0-51, lower is better)": "動画のCRF値（0-51、低いほど高品質）",
		"Path to ffmpeg executable (falls back to FFMPEG_PATH, then PATH)": "ffmpeg実行ファイルのパス（未指定時は FFMPEG_PATH、次に PATH）",
		"Contact sheet PNG path":                                           "コンタクトシートPNGのパス",
		"Put every Nth frame on the contact sheet":                         "Nフレームごとにコンタクトシートへ配置",
		"Parallel image writers":                                           "画像書き出しの並列数",
		"Output execution summary to file (Markdown, or YAML for .yaml/.yml)": "実行サマリーをファイルに出力（Markdown形式、.yaml/.yml は YAML 形式）",
		"Hide the progress bar":                                            "プログレスバーを非表示",

		// Debug and logging flags
		"Enable debug output":                  "デバッグ出力を有効化",
		"Directory for debug output":           "デバッグ出力のディレクトリ",
		"Log level (debug, info, warn, error)": "ログレベル（debug, info, warn, error）",
		"Suppress all log output":              "全てのログ出力を抑制",

		// Plan command
		"Show how a sequence would be split into chunks":                                "シーケンスのチャンク分割を表示",
		"Print the chunk plan and the frames each chunk contributes, without decoding.": "デコードせずに、チャンク計画と各チャンクが寄与するフレームを表示します。",
		"Number of latent frames":                                                       "潜在フレーム数",
		"Latent frames per chunk":                                                       "チャンクあたりの潜在フレーム数",
		"Context frames on each side of a chunk":                                        "チャンク両側のコンテキストフレーム数",
		"Output frames per latent frame":                                                "潜在フレームあたりの出力フレーム数",
		"Print the plan as JSON":                                                        "計画をJSONで表示",
		"%d latent frames, batch %d, overlap %d: %d chunks, %d output frames":           "潜在 %d フレーム, バッチ %d, オーバーラップ %d: %d チャンク, 出力 %d フレーム",

		// Probe command
		"Detect the time and spatial scale of the decoder":                         "デコーダの時間・空間スケールを検出",
		"Decode a small crop of the latents and print the measured scale as JSON.": "潜在の一部をデコードし、計測したスケールをJSONで表示します。",

		// Verify command
		"Check that a video has the length its latents imply":                                            "動画の長さが潜在から期待される長さと一致するか確認",
		"Read the sample table of an MP4 file and compare it with 1 + (latent frames - 1) x time scale.": "MP4ファイルのサンプルテーブルを読み、1 + (潜在フレーム数 - 1) x 時間スケール と比較します。",
		"Number of latent frames the video was decoded from":                                             "動画のデコード元の潜在フレーム数",
		"%s: %s %dx%d, %d samples (%d keyframes), %.3f s at %.3f fps":                                    "%s: %s %dx%d, %d サンプル (キーフレーム %d), %.3f 秒 (%.3f fps)",

		// Synth command
		"Write synthetic latents to a safetensors file":                               "合成潜在をsafetensorsファイルに書き出し",
		"Generate a smooth latent sequence for trying out chunk and memory settings.": "チャンクやメモリ設定を試すための滑らかな潜在シーケンスを生成します。",
		"Latent size as FRAMESxHEIGHTxWIDTH":                                          "潜在サイズ（FRAMESxHEIGHTxWIDTH）",
		"Latent channels":                                                             "潜在チャンネル数",
		"Element type (F32, F16, BF16)":                                               "要素型（F32, F16, BF16）",
		"Tensor name":                                                                 "テンソル名",
		"Wrote %v %s latents to %s":                                                   "%v %s の潜在を %s に書き出しました",

		// Version command
		"Show version information": "バージョン情報を表示",
		"chunkdecode version %s":   "chunkdecode バージョン %s",

		// Runtime messages
		"Decoding %s with %s":                     "%s を %s でデコード中",
		"Output saved to %s":                      "出力を %s に保存しました",
		"Video has %d samples, decoded %d frames": "動画のサンプル数 %d, デコードしたフレーム数 %d",
		"Interrupted, shutting down...":           "中断されました。シャットダウン中...",

		// Error messages
		"latent file argument is required": "潜在ファイルの引数が必要です",
		"video file argument is required":  "動画ファイルの引数が必要です",

		// Summary output
		"Summary saved to %s":         "サマリーを %s に保存しました",
		"Failed to write summary: %s": "サマリーの書き込みに失敗しました: %s",

		// Summary content
		"Decode Summary": "デコードサマリー",
		"Run":            "実行ID",
		"Generated":      "生成日時",
		"Settings":       "設定",
		"Result":         "実行結果",
		"Chunks":         "チャンク",

		// Input section
		"File":          "ファイル",
		"Tensor":        "テンソル",
		"Data Type":     "データ型",
		"Shape":         "形状",
		"Latent Frames": "潜在フレーム数",
		"Still image":   "静止画",

		// Decoder section
		"Time Scale":    "時間スケール",
		"Spatial Scale": "空間スケール",
		"override":      "指定",
		"cache":         "キャッシュ",
		"metadata":      "申告",
		"probe":         "計測",
		"default":       "既定値",

		// Settings section
		"Frames per Batch": "バッチあたりのフレーム数",
		"Overlap":          "オーバーラップ",
		"Tiling":           "タイル",
		"Off":              "オフ",
		"manual":           "手動",

		// Result section
		"Frames":      "フレーム数",
		"Sync":        "同期",
		"OK":          "正常",
		"Mismatch":    "不一致",
		"Memory":      "メモリ",
		"Degraded":    "縮退あり",
		"Decode Time": "デコード時間",
		"Core":        "コア",
		"Context":     "コンテキスト",
		"Steps":       "縮退手順",

		// Output section
		"Video":         "動画",
		"Video Samples": "動画サンプル数",
		"Contact Sheet": "コンタクトシート",
	})
}
