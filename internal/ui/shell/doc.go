// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package shell is the Bubble Tea front end for the chat controller.
//
// The model never mutates controller state directly. Every action is issued
// as a tea.Cmd built from the chat package's *Cmd helpers, and every redraw
// is driven by chat.ChangedMsg, which the model re-arms with
// chat.WaitForChange after each delivery.
//
// # Layout
//
//	+------------------------------------------------------------+
//	| ragchat  Chat title                                        |
//	+-----------+------------------------------------------------+
//	| Chats     |  messages (viewport)                           |
//	| 1 First   |                                                |
//	| 2 Second  |                                                |
//	+-----------+------------------------------------------------+
//	| Document loaded (12 chunks)  upload status      last notice|
//	| > input                                                    |
//	| help                                                       |
//	+------------------------------------------------------------+
//
// The sidebar is hidden on terminals narrower than 80 columns.
//
// # Slash Commands
//
// Input beginning with "/" is parsed by ParseCommand:
//
//	/new              start a new chat
//	/switch N|ID      switch to chat N from the sidebar, or by id
//	/delete [N|ID]    delete a chat (default: the active one)
//	/upload PATH      upload a document
//	/clear            remove all documents from the service
//	/health           re-check the service
//	/sessions         reload the chat list
//	/info             show the service's document summary
//	/help             toggle the full help
//	/quit             exit
package shell
