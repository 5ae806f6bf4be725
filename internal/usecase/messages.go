package usecase

import "github.com/iamvkosarev/rag-chat-bot/pkg/local"

var (
	TextQueryFailed = local.NewSet(
		"Something went wrong. Check that the backend server is running.",
		local.NewTrans(local.Jpn, "エラーが発生しました。バックエンドサーバーの起動状況を確認してください。"),
	)
	TextGenerating = local.NewSet(
		"Generating answer...",
		local.NewTrans(local.Jpn, "回答を生成中..."),
	)
	TextEmptyState = local.NewSet(
		"Ask the knowledge base a question.",
		local.NewTrans(local.Jpn, "Scrapbox の知識ベースに質問してみましょう"),
	)
	TextWelcome = local.NewSet(
		"Ask the knowledge base anything. Every answer comes with the sources it was built from. "+
			"Pick an example below or write your own question.",
		local.NewTrans(
			local.Jpn,
			"Scrapboxの共有知から、必要な答えをAIが瞬時に導き出します。下の例を選ぶか、質問を入力してください。",
		),
	)
	TextHelp = local.NewSet(
		"Write a question to search the knowledge base.\n"+
			"/new starts a new chat\n/history shows the current chat\n/help shows this message",
		local.NewTrans(
			local.Jpn,
			"質問を入力すると知識ベースを検索します。\n"+
				"/new 新しいチャット\n/history 現在のチャット\n/help このメッセージ",
		),
	)
	TextStillAnswering = local.NewSet(
		"Still answering your previous question, please wait.",
		local.NewTrans(local.Jpn, "前の質問に回答中です。しばらくお待ちください。"),
	)
	TextCleared = local.NewSet(
		"Started a new chat.",
		local.NewTrans(local.Jpn, "新しいチャットを開始しました。"),
	)
	TextNoHistory = local.NewSet(
		"No history yet.",
		local.NewTrans(local.Jpn, "履歴はありません"),
	)
	TextHistoryFormat = local.NewSet(
		"Current chat: %s\nMessages: %d",
		local.NewTrans(local.Jpn, "現在のチャット: %s\nメッセージ数: %d"),
	)
	TextUnknownCommand = local.NewSet(
		"I don't know that command",
		local.NewTrans(local.Jpn, "不明なコマンドです"),
	)
	TextEmptyAnswer = local.NewSet(
		"(empty answer)",
		local.NewTrans(local.Jpn, "（回答が空です）"),
	)
	TextMoreSources = local.NewSet(
		"…and %d more",
		local.NewTrans(local.Jpn, "…他 %d 件"),
	)
	TextSourcesUnavailable = local.NewSet(
		"These sources belong to a chat that was cleared.",
		local.NewTrans(local.Jpn, "このチャットは既にクリアされています。"),
	)

	ExampleQuestions = []local.TextSet{
		local.NewSet("What is Scrapbox?", local.NewTrans(local.Jpn, "Scrapboxとは何ですか？")),
		local.NewSet(
			"How does this RAG system work?",
			local.NewTrans(local.Jpn, "このRAGシステムの仕組みを教えてください"),
		),
		local.NewSet(
			"What are the main indexed topics?",
			local.NewTrans(local.Jpn, "インデックスされている主なトピックは何ですか？"),
		),
	}
)

// Examples returns the example questions in language.
func Examples(language local.Language) []string {
	examples := make([]string, 0, len(ExampleQuestions))
	for _, example := range ExampleQuestions {
		examples = append(examples, example.Text(language))
	}
	return examples
}
